// Command server boots the orchestrator API: it wires the store, the two
// ProviderDriver backends, billing, the session manager, the session
// monitor, the shell bridge, and the supporting cache/lock/notify
// infrastructure, then serves HTTP until an interrupt triggers graceful
// shutdown. Bootstrap shape (sequential component init with fatal-on-error
// logging, signal-driven shutdown with a bounded timeout) follows the
// teacher's cmd/server/main.go.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stripe/stripe-go/v82"
	clientv3 "go.etcd.io/etcd/client/v3"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/sessionforge/sessionforge/internal/billing"
	"github.com/sessionforge/sessionforge/internal/cache"
	"github.com/sessionforge/sessionforge/internal/config"
	"github.com/sessionforge/sessionforge/internal/lock"
	"github.com/sessionforge/sessionforge/internal/logger"
	"github.com/sessionforge/sessionforge/internal/manager"
	"github.com/sessionforge/sessionforge/internal/monitor"
	"github.com/sessionforge/sessionforge/internal/notify"
	"github.com/sessionforge/sessionforge/internal/provider/jobs"
	"github.com/sessionforge/sessionforge/internal/provider/pods"
	"github.com/sessionforge/sessionforge/internal/shell"
	"github.com/sessionforge/sessionforge/internal/store"
)

func main() {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.Server()

	log.Info().Msg("starting session orchestrator")

	log.Info().Msg("connecting to store...")
	s, err := store.New(store.Config{
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
		ConnLifetime: cfg.DBConnLifetime,
		ConnIdleTime: cfg.DBConnIdleTime,

		MinioEndpoint:     cfg.MinioEndpoint,
		MinioAccessKey:    cfg.MinioAccessKey,
		MinioSecretKey:    cfg.MinioSecretKey,
		MinioUseSSL:       cfg.MinioUseSSL,
		MinioRegion:       cfg.MinioRegion,
		MinioBucketPrefix: cfg.MinioBucketPrefix,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to store")
	}
	defer s.Close()

	log.Info().Msg("initializing cache...")
	redisHost, redisPort, err := net.SplitHostPort(cfg.RedisAddr)
	if err != nil {
		log.Fatal().Err(err).Str("redis_addr", cfg.RedisAddr).Msg("invalid REDIS_ADDR")
	}
	redisCache, err := cache.NewCache(cache.Config{
		Host:    redisHost,
		Port:    redisPort,
		Enabled: true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("cache unavailable, continuing without it")
		redisCache, _ = cache.NewCache(cache.Config{Enabled: false})
	}
	defer redisCache.Close()

	log.Info().Msg("connecting to lock service...")
	etcdCli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.EtcdEndpoints,
		DialTimeout: 5 * time.Second,
	})
	var locker *lock.Locker
	if err != nil {
		log.Warn().Err(err).Msg("etcd unavailable, running without distributed locking")
	} else {
		defer etcdCli.Close()
		locker = lock.New(etcdCli)
	}

	log.Info().Msg("connecting to notification bus...")
	notifier, err := notify.NewPublisher(cfg.NATSURL)
	if err != nil {
		log.Warn().Err(err).Msg("notification publisher unavailable, continuing without it")
		notifier, _ = notify.NewPublisher("")
	}
	defer notifier.Close()

	log.Info().Msg("initializing jobs provider...")
	jobsDriver, err := jobs.New(cfg.DockerHost)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize jobs provider")
	}

	log.Info().Msg("initializing pods provider...")
	kubeCfg, err := buildKubeConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load kubernetes config")
	}
	clientset, err := kubernetes.NewForConfig(kubeCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kubernetes clientset")
	}
	podsDriver := pods.New(clientset, kubeCfg, cfg.KubeNamespace)

	if cfg.StripeAPIKey != "" {
		stripe.Key = cfg.StripeAPIKey
	}
	billingEngine := billing.New(s, billing.DefaultPricing())

	mgr := manager.New(s, billingEngine, jobsDriver, podsDriver, redisCache, locker, notifier)

	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mgr.RestoreOnStartup(restoreCtx); err != nil {
		log.Error().Err(err).Msg("startup restoration failed")
	}
	cancelRestore()

	mon := monitor.New(s, mgr, billingEngine, notifier, monitor.Limits{
		CheckInterval: cfg.MonitorCheckInterval,
		MaxDuration:   time.Duration(cfg.MonitorMaxDurationHours * float64(time.Hour)),
		MaxCostUSD:    cfg.MonitorMaxCostUSD,
		MinSessionAge: cfg.MonitorMinSessionAge,
		GracePeriod:   cfg.MonitorGracePeriod,
	})
	if err := mon.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start session monitor")
	}
	defer mon.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/ws/shell", shell.NewHandler(mgr, s, billingEngine))

	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8000"
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0, // shell websockets are long-lived
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("port", port).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("shutdown complete")
}

// buildKubeConfig tries in-cluster config first, falling back to a
// kubeconfig file path, mirroring the teacher's getConfig helper.
func buildKubeConfig(cfg *config.Config) (*rest.Config, error) {
	if cfg.KubeInCluster {
		return rest.InClusterConfig()
	}
	kubeconfig := cfg.KubeconfigPath
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		kubeconfig = home + "/.kube/config"
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}
