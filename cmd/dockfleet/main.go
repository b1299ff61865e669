package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dockfleet/dockfleet/pkg/api"
	"github.com/dockfleet/dockfleet/pkg/breaker"
	"github.com/dockfleet/dockfleet/pkg/config"
	"github.com/dockfleet/dockfleet/pkg/connmgr"
	"github.com/dockfleet/dockfleet/pkg/events"
	"github.com/dockfleet/dockfleet/pkg/executor"
	"github.com/dockfleet/dockfleet/pkg/log"
	"github.com/dockfleet/dockfleet/pkg/metrics"
	"github.com/dockfleet/dockfleet/pkg/permission"
	"github.com/dockfleet/dockfleet/pkg/security"
	"github.com/dockfleet/dockfleet/pkg/selfref"
	"github.com/dockfleet/dockfleet/pkg/shell"
	"github.com/dockfleet/dockfleet/pkg/storage"
	"github.com/dockfleet/dockfleet/pkg/stream"
	"github.com/dockfleet/dockfleet/pkg/transport"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dockfleet",
	Short: "Dockfleet - multi-host Docker fleet control plane",
	Long: `Dockfleet manages a fleet of Docker hosts from a single control
plane: pooled engine connections over unix sockets, TCP, TLS, and SSH,
per-host circuit breakers, shared log and stats streams, and per-host
permission grants.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Dockfleet version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(containerCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(eventsCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the Dockfleet control plane",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return runServer(configPath)
	},
}

func init() {
	serverCmd.Flags().String("config", "", "Path to YAML config file")
}

func runServer(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	metrics.SetVersion(Version)

	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required (set DOCKFLEET_JWT_SECRET)")
	}
	key, err := security.ParseEncryptionKey(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("invalid encryption key: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		metrics.RegisterComponent("storage", false, err.Error())
		return err
	}
	defer store.Close()
	metrics.RegisterComponent("storage", true, "boltdb open")

	creds, err := security.NewCredentialStore(key, store)
	if err != nil {
		return err
	}

	perms := permission.NewResolver(store, cfg.PermissionCacheTTL)
	conns := connmgr.NewManager(store, creds, transport.NewDialer(), connmgr.Config{
		HealthCheckInterval: cfg.HealthCheckInterval,
		Breaker: breaker.Config{
			FailureThreshold: cfg.BreakerFailureThreshold,
			RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
		},
	})
	conns.Start()
	metrics.RegisterComponent("connmgr", true, "running")

	mux := stream.NewMultiplexer(stream.Config{
		BufferSize:        cfg.BufferSize,
		MaxTotalStreams:   cfg.MaxTotalStreams,
		SubscriberQueue:   cfg.SubscriberQueue,
		IdleTTL:           cfg.StreamIdleTTL,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})
	mux.Start()

	broadcaster := events.NewBroadcaster(cfg.SubscriberQueue)
	detector := selfref.NewDetector(cfg.SelfMonitorLabels, cfg.SelfMonitorNames)

	exec := executor.New(store, creds, perms, conns, mux, broadcaster, detector, shell.NewMediator())
	server := api.NewServer(cfg, exec, store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.WithComponent("main").Info().
		Str("version", Version).
		Str("data_dir", cfg.DataDir).
		Msg("dockfleet started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithComponent("main").Info().
			Str("signal", sig.String()).
			Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithComponent("main").Warn().Err(err).Msg("api shutdown error")
	}
	mux.Shutdown()
	broadcaster.Shutdown()
	conns.Shutdown()
	return nil
}
