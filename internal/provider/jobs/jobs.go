// Package jobs implements the ProviderDriver backend for short, stateless,
// scale-to-zero sessions: each Create just records intent (no container is
// started until the first Execute), and each Execute runs one command in a
// freshly created container that exits when the command finishes.
//
// Grounded on the container lifecycle calls in the teacher's docker-agent
// (agent_docker_operations.go), adapted from a standalone agent process
// into an in-process ProviderDriver.
package jobs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
	"github.com/sessionforge/sessionforge/internal/logger"
	"github.com/sessionforge/sessionforge/internal/models"
	"github.com/sessionforge/sessionforge/internal/provider"
)

// Driver runs one-shot containers per Execute call against a Docker daemon.
type Driver struct {
	cli *client.Client

	mu       sync.Mutex
	sessions map[string]*models.SessionInfo
	jobs     map[string]*jobHandle // jobID -> container tracking
}

type jobHandle struct {
	containerID string
	sessionID   string
}

// New connects to the Docker daemon at host (e.g. "unix:///var/run/docker.sock").
func New(host string) (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.WithHost(host), client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Driver{
		cli:      cli,
		sessions: make(map[string]*models.SessionInfo),
		jobs:     make(map[string]*jobHandle),
	}, nil
}

func (d *Driver) Name() models.ProviderKind { return models.ProviderJobs }

// Create records the session's intended image/env; no container runs until
// the first Execute, since this backend scales to zero between calls.
func (d *Driver) Create(ctx context.Context, req *models.CreateSessionRequest, sessionID string) (*models.SessionInfo, error) {
	info := &models.SessionInfo{
		ID:          sessionID,
		WorkspaceID: req.WorkspaceID,
		Namespace:   req.Namespace,
		User:        req.User,
		Provider:    models.ProviderJobs,
		Status:      models.StatusRunning,
		CreatedAt:   time.Now(),
	}
	d.mu.Lock()
	d.sessions[sessionID] = info
	d.mu.Unlock()

	log := logger.Provider("jobs")
	log.Info().Str("session_id", sessionID).Str("image", req.ImageSpec).Msg("session registered, cold start deferred to first execute")
	return info, nil
}

func (d *Driver) Get(ctx context.Context, sessionID string) (*models.SessionInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[sessionID], nil
}

// Delete is idempotent teardown: any outstanding job containers for this
// session are removed, and the intent record is dropped.
func (d *Driver) Delete(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	delete(d.sessions, sessionID)
	var containerIDs []string
	for jobID, h := range d.jobs {
		if h.sessionID == sessionID {
			containerIDs = append(containerIDs, h.containerID)
			delete(d.jobs, jobID)
		}
	}
	d.mu.Unlock()

	for _, id := range containerIDs {
		_ = d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	}
	return nil
}

// Execute runs command in a fresh container, polling until it exits or
// timeout elapses. On timeout the container is left running (the caller's
// timeout bounds the caller's wait, not the backend's cancellation) and
// ReturnCode=124 is returned. When async is true, Execute starts the
// container and returns immediately with a job handle for GetJobStatus.
func (d *Driver) Execute(ctx context.Context, sessionID, command string, timeout time.Duration, async bool) (*models.ExecResult, error) {
	d.mu.Lock()
	sess, ok := d.sessions[sessionID]
	d.mu.Unlock()
	if !ok {
		return nil, sferrors.ProviderUnavailable("jobs.Execute", fmt.Sprintf("session %s not registered", sessionID), nil)
	}

	containerID, err := d.startJobContainer(ctx, sess, command)
	if err != nil {
		return nil, sferrors.ProviderUnavailable("jobs.Execute", "failed to start job container", err)
	}

	jobID := containerID
	jobName := "job-" + sessionID
	d.mu.Lock()
	d.jobs[jobID] = &jobHandle{containerID: containerID, sessionID: sessionID}
	d.mu.Unlock()

	if async {
		return &models.ExecResult{Success: true, Status: "submitted", JobID: jobID, JobName: jobName}, nil
	}

	return d.waitForCompletion(ctx, containerID, jobID, jobName, timeout)
}

func (d *Driver) startJobContainer(ctx context.Context, sess *models.SessionInfo, command string) (string, error) {
	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image: "sessionforge/exec-base:latest",
		Cmd:   []string{"/bin/sh", "-c", command},
		Labels: map[string]string{
			"sessionforge.session_id": sess.ID,
			"sessionforge.workspace":  sess.WorkspaceID,
		},
	}, &container.HostConfig{AutoRemove: false}, nil, nil, "")
	if err != nil {
		return "", err
	}
	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (d *Driver) waitForCompletion(ctx context.Context, containerID, jobID, jobName string, timeout time.Duration) (*models.ExecResult, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusCh, errCh := d.cli.ContainerWait(waitCtx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if waitCtx.Err() != nil {
			return &models.ExecResult{Success: false, ReturnCode: 124, Status: "timeout", JobID: jobID, JobName: jobName}, nil
		}
		return nil, err
	case st := <-statusCh:
		stdout, stderr := d.collectLogs(ctx, containerID)
		return &models.ExecResult{
			Success:    st.StatusCode == 0,
			ReturnCode: int(st.StatusCode),
			Stdout:     stdout,
			Stderr:     stderr,
			Status:     "completed",
			JobID:      jobID,
			JobName:    jobName,
		}, nil
	case <-waitCtx.Done():
		return &models.ExecResult{Success: false, ReturnCode: 124, Status: "timeout", JobID: jobID, JobName: jobName}, nil
	}
}

func (d *Driver) collectLogs(ctx context.Context, containerID string) (string, string) {
	out, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", ""
	}
	defer out.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, out)
	// Docker multiplexes stdout/stderr on one stream for non-tty containers;
	// this backend doesn't need to demultiplex it, so it is surfaced as
	// combined output on Stdout.
	return strings.TrimSpace(buf.String()), ""
}

// GetJobStatus polls a container started by a prior async Execute call.
func (d *Driver) GetJobStatus(ctx context.Context, sessionID, jobID, jobName string) (*models.ExecResult, error) {
	d.mu.Lock()
	h, ok := d.jobs[jobID]
	d.mu.Unlock()
	if !ok {
		return nil, sferrors.NotFound("jobs.GetJobStatus", fmt.Sprintf("job %s not found", jobID))
	}

	inspect, err := d.cli.ContainerInspect(ctx, h.containerID)
	if err != nil {
		return nil, sferrors.ProviderUnavailable("jobs.GetJobStatus", "inspect failed", err)
	}
	if inspect.State.Running {
		return &models.ExecResult{Status: "running", JobID: jobID, JobName: jobName}, nil
	}
	stdout, stderr := d.collectLogs(ctx, h.containerID)
	return &models.ExecResult{
		Success:    inspect.State.ExitCode == 0,
		ReturnCode: inspect.State.ExitCode,
		Stdout:     stdout,
		Stderr:     stderr,
		Status:     "completed",
		JobID:      jobID,
		JobName:    jobName,
	}, nil
}

// OpenShell multiplexes an interactive shell over successive one-shot
// execs: each write to the stream is run as a fresh command, and its
// output is pushed back to the reader, since the jobs backend has no
// persistent process to attach to between calls.
func (d *Driver) OpenShell(ctx context.Context, sessionID string) (provider.ShellStream, error) {
	d.mu.Lock()
	_, ok := d.sessions[sessionID]
	d.mu.Unlock()
	if !ok {
		return nil, sferrors.ProviderUnavailable("jobs.OpenShell", fmt.Sprintf("session %s not registered", sessionID), nil)
	}
	return &execShell{driver: d, sessionID: sessionID}, nil
}

// execShell satisfies provider.ShellStream by running each line written to
// it as a separate Execute call and buffering the result for Read.
type execShell struct {
	driver    *Driver
	sessionID string
	mu        sync.Mutex
	out       bytes.Buffer
}

func (e *execShell) Write(p []byte) (int, error) {
	cmd := strings.TrimSpace(string(p))
	if cmd == "" {
		return len(p), nil
	}
	res, err := e.driver.Execute(context.Background(), e.sessionID, cmd, 30*time.Second, false)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	e.out.WriteString(res.Stdout)
	e.out.WriteString(res.Stderr)
	e.mu.Unlock()
	return len(p), nil
}

func (e *execShell) Read(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out.Read(p)
}

func (e *execShell) Close() error { return nil }
