// Package pods implements the ProviderDriver backend for long-lived
// sessions: each session is a single-replica Deployment that stays up for
// the session's lifetime, with Execute running commands directly in the
// live pod.
//
// Grounded on the teacher's k8s-agent createSessionDeployment (typed
// Deployment construction, resource.ParseQuantity, label/env conventions)
// rather than the teacher's CRD/dynamic-client operator in
// api/internal/k8s/client.go: this driver is called directly by the
// session manager, not reconciled from a watched custom resource.
package pods

import (
	"bytes"
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/logger"
	"github.com/sessionforge/sessionforge/internal/models"
	"github.com/sessionforge/sessionforge/internal/provider"
)

// ReadyDeadline bounds how long Create waits for the pod to become ready
// before returning an error, per spec §4.2.2.
const ReadyDeadline = 2 * time.Minute

// Driver manages one Deployment per session in a Kubernetes cluster.
type Driver struct {
	clientset *kubernetes.Clientset
	restCfg   *rest.Config
	namespace string
}

func New(clientset *kubernetes.Clientset, restCfg *rest.Config, namespace string) *Driver {
	return &Driver{clientset: clientset, restCfg: restCfg, namespace: namespace}
}

func (d *Driver) Name() models.ProviderKind { return models.ProviderPods }

// Create applies a single-replica Deployment and blocks until its pod
// reports Ready or ReadyDeadline elapses.
func (d *Driver) Create(ctx context.Context, req *models.CreateSessionRequest, sessionID string) (*models.SessionInfo, error) {
	log := logger.Provider("pods")

	cpu := req.ResourceSpec
	var cpuCores, memGB float64
	if cpu != nil {
		cpuCores, memGB = cpu.CPUCores, cpu.MemoryGB
	}
	if cpuCores == 0 {
		cpuCores = 1
	}
	if memGB == 0 {
		memGB = 2
	}

	cpuQty, err := resource.ParseQuantity(fmt.Sprintf("%dm", int(cpuCores*1000)))
	if err != nil {
		return nil, sferrors.InvalidInput("pods.Create", "invalid cpu spec")
	}
	memQty, err := resource.ParseQuantity(fmt.Sprintf("%dMi", int(memGB*1024)))
	if err != nil {
		return nil, sferrors.InvalidInput("pods.Create", "invalid memory spec")
	}

	replicas := int32(1)
	image := req.ImageSpec
	if image == "" {
		image = "sessionforge/desktop-base:latest"
	}

	envVars := []corev1.EnvVar{
		{Name: "USER", Value: req.User},
		{Name: "SESSION_ID", Value: sessionID},
		{Name: "PUID", Value: "1000"},
		{Name: "PGID", Value: "1000"},
		{Name: "TZ", Value: "UTC"},
	}
	for k, v := range req.Env {
		envVars = append(envVars, corev1.EnvVar{Name: k, Value: v})
	}

	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      sessionID,
			Namespace: d.namespace,
			Labels: map[string]string{
				"app":     "sessionforge-session",
				"session": sessionID,
				"user":    req.User,
			},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"session": sessionID}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{"app": "sessionforge-session", "session": sessionID, "user": req.User},
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  "session",
							Image: image,
							Env:   envVars,
							Resources: corev1.ResourceRequirements{
								Limits:   corev1.ResourceList{corev1.ResourceCPU: cpuQty, corev1.ResourceMemory: memQty},
								Requests: corev1.ResourceList{corev1.ResourceCPU: cpuQty, corev1.ResourceMemory: memQty},
							},
						},
					},
				},
			},
		},
	}

	if _, err := d.clientset.AppsV1().Deployments(d.namespace).Create(ctx, deployment, metav1.CreateOptions{}); err != nil {
		return nil, sferrors.ProviderUnavailable("pods.Create", "deployment create failed", err)
	}

	info := &models.SessionInfo{
		ID:          sessionID,
		WorkspaceID: req.WorkspaceID,
		Namespace:   d.namespace,
		User:        req.User,
		Provider:    models.ProviderPods,
		Status:      models.StatusCreating,
		CreatedAt:   time.Now(),
	}

	if err := d.waitReady(ctx, sessionID); err != nil {
		return nil, sferrors.ProviderUnavailable("pods.Create", "pod did not become ready", err)
	}
	info.Status = models.StatusRunning

	log.Info().Str("session_id", sessionID).Msg("session deployment ready")
	return info, nil
}

func (d *Driver) waitReady(ctx context.Context, sessionID string) error {
	deadline := time.Now().Add(ReadyDeadline)
	for time.Now().Before(deadline) {
		dep, err := d.clientset.AppsV1().Deployments(d.namespace).Get(ctx, sessionID, metav1.GetOptions{})
		if err == nil && dep.Status.ReadyReplicas >= 1 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return fmt.Errorf("timed out waiting for deployment %s to become ready", sessionID)
}

func (d *Driver) Get(ctx context.Context, sessionID string) (*models.SessionInfo, error) {
	dep, err := d.clientset.AppsV1().Deployments(d.namespace).Get(ctx, sessionID, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, sferrors.ProviderUnavailable("pods.Get", "deployment get failed", err)
	}
	status := models.StatusCreating
	if dep.Status.ReadyReplicas >= 1 {
		status = models.StatusRunning
	}
	return &models.SessionInfo{
		ID:        sessionID,
		Namespace: d.namespace,
		User:      dep.Labels["user"],
		Provider:  models.ProviderPods,
		Status:    status,
		CreatedAt: dep.CreationTimestamp.Time,
	}, nil
}

// Delete is idempotent: deleting an already-gone deployment is not an error.
func (d *Driver) Delete(ctx context.Context, sessionID string) error {
	err := d.clientset.AppsV1().Deployments(d.namespace).Delete(ctx, sessionID, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return sferrors.ProviderUnavailable("pods.Delete", "deployment delete failed", err)
	}
	return nil
}

func (d *Driver) podName(ctx context.Context, sessionID string) (string, error) {
	pods, err := d.clientset.CoreV1().Pods(d.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "session=" + sessionID,
	})
	if err != nil {
		return "", err
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("no pod found for session %s", sessionID)
	}
	return pods.Items[0].Name, nil
}

// Execute runs command in the live pod via the exec subresource, honoring
// timeout. Async execution runs the command in a detached goroutine and
// returns a job id immediately; GetJobStatus is a best-effort stub here
// since the pods backend has no separate job-tracking store of its own —
// sync execute is the common path for long-lived sessions.
func (d *Driver) Execute(ctx context.Context, sessionID, command string, timeout time.Duration, async bool) (*models.ExecResult, error) {
	podName, err := d.podName(ctx, sessionID)
	if err != nil {
		return nil, sferrors.ProviderUnavailable("pods.Execute", "pod lookup failed", err)
	}

	if async {
		jobID := podName + "-async"
		go func() {
			execCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			_, _, _ = d.execInPod(execCtx, podName, command)
		}()
		return &models.ExecResult{Success: true, Status: "submitted", JobID: jobID, JobName: jobID}, nil
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stdout, stderr, err := d.execInPod(execCtx, podName, command)
	if err != nil {
		if execCtx.Err() != nil {
			return &models.ExecResult{Success: false, ReturnCode: 124, Status: "timeout"}, nil
		}
		return &models.ExecResult{Success: false, ReturnCode: 1, Stdout: stdout, Stderr: stderr, Status: "completed"}, nil
	}
	return &models.ExecResult{Success: true, ReturnCode: 0, Stdout: stdout, Stderr: stderr, Status: "completed"}, nil
}

func (d *Driver) execInPod(ctx context.Context, podName, command string) (string, string, error) {
	req := d.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(podName).
		Namespace(d.namespace).
		SubResource("exec")
	req.VersionedParams(&corev1.PodExecOptions{
		Container: "session",
		Command:   []string{"/bin/sh", "-c", command},
		Stdout:    true,
		Stderr:    true,
	}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(d.restCfg, "POST", req.URL())
	if err != nil {
		return "", "", err
	}

	var stdout, stderr bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{Stdout: &stdout, Stderr: &stderr})
	return stdout.String(), stderr.String(), err
}

// GetJobStatus is not meaningfully supported for the pods backend: async
// execute here just detaches a goroutine rather than tracking a separate
// job resource, so there is nothing further to poll.
func (d *Driver) GetJobStatus(ctx context.Context, sessionID, jobID, jobName string) (*models.ExecResult, error) {
	return nil, sferrors.ProviderUnavailable("pods.GetJobStatus", "pods backend does not track async job handles", nil)
}

// OpenShell bridges to the pod's exec channel with an interactive TTY.
func (d *Driver) OpenShell(ctx context.Context, sessionID string) (provider.ShellStream, error) {
	podName, err := d.podName(ctx, sessionID)
	if err != nil {
		return nil, sferrors.ProviderUnavailable("pods.OpenShell", "pod lookup failed", err)
	}

	req := d.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(podName).
		Namespace(d.namespace).
		SubResource("exec")
	req.VersionedParams(&corev1.PodExecOptions{
		Container: "session",
		Command:   []string{"/bin/sh"},
		Stdin:     true,
		Stdout:    true,
		Stderr:    true,
		TTY:       true,
	}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(d.restCfg, "POST", req.URL())
	if err != nil {
		return nil, sferrors.ProviderUnavailable("pods.OpenShell", "executor setup failed", err)
	}

	stream := newPodShellStream()
	go func() {
		_ = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
			Stdin:  stream.stdinReader,
			Stdout: stream.stdoutWriter,
			Stderr: stream.stdoutWriter,
			Tty:    true,
		})
		stream.Close()
	}()
	return stream, nil
}
