package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wildland/wildland-go/internal/logger"
	"github.com/wildland/wildland-go/internal/telemetry"
	"github.com/wildland/wildland-go/pkg/client"
	"github.com/wildland/wildland-go/pkg/config"
	"github.com/wildland/wildland-go/pkg/daemon"
	"github.com/wildland/wildland-go/pkg/metrics"
	"github.com/wildland/wildland-go/pkg/sig"
	"github.com/wildland/wildland-go/pkg/storage/hashcache"

	// Import prometheus metrics implementations to register their init()
	// constructors.
	_ "github.com/wildland/wildland-go/pkg/metrics/prometheus"

	// Import backend implementations to register their init() constructors
	// with pkg/storage's registry.
	_ "github.com/wildland/wildland-go/pkg/storage/dateproxy"
	_ "github.com/wildland/wildland-go/pkg/storage/delegate"
	_ "github.com/wildland/wildland-go/pkg/storage/local"
	_ "github.com/wildland/wildland-go/pkg/storage/s3backend"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Wildland mount daemon",
	Long: `Start the Wildland mount daemon with the specified configuration.

By default, the daemon runs in the background. Use --foreground to run
in the foreground for debugging or when managed by a process
supervisor.

Examples:
  # Start in background (default)
  wildlandfs start

  # Start in foreground
  wildlandfs start --foreground

  # Start with a custom config file
  wildlandfs start --config /etc/wildland/config.yaml`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/wildlandfs/wildlandfs.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/wildlandfs/wildlandfs.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "wildlandfs",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown error", "error", err)
		}
	}()

	sigCtx, err := sig.NewSodium(cfg.KeyDir)
	if err != nil {
		return fmt.Errorf("loading signing keys from %s: %w", cfg.KeyDir, err)
	}
	cl := client.New(cfg, sigCtx)

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics enabled", "addr", cfg.Metrics.Addr)
	} else {
		logger.Info("metrics disabled")
	}

	hc, err := hashcache.OpenWithMaxSize(cfg.HashCacheDir, cfg.HashCacheMaxSize)
	if err != nil {
		return fmt.Errorf("opening hash cache: %w", err)
	}
	defer func() { _ = hc.Close() }()

	d := daemon.New(cl)
	d.SetMetrics(metrics.NewDaemonMetrics())
	d.SetHashCache(hc)
	d.Table().Resolver().SetMetrics(metrics.NewResolverMetrics())

	srv := daemon.NewServer(cfg.ControlSocketPath, d)

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	var metricsSrv *metrics.Server
	metricsDone := make(chan error, 1)
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics.Addr)
		go func() { metricsDone <- metricsSrv.Start(ctx) }()
	}

	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.Start(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("wildlandfs is running", "control_socket", cfg.ControlSocketPath)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received")
		cancel()
		d.UnmountAll(context.Background())
		if err := <-serverDone; err != nil {
			logger.Error("control server shutdown error", "error", err)
			return err
		}
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("control server error", "error", err)
			return err
		}
	}

	if metricsSrv != nil {
		if err := <-metricsDone; err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	logger.Info("wildlandfs stopped")
	return nil
}
