// Command ukvd is the server daemon: it opens an engine.Database and serves
// it over the HTTP command surface (pkg/server) and the transactional gRPC
// surface (pkg/server/grpcserver), following the teacher's cmd/warren
// structure (persistent flags, cobra.OnInitialize for logging setup,
// versioned root command, signal-driven graceful shutdown).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unum-cloud/ukvdb/pkg/config"
	"github.com/unum-cloud/ukvdb/pkg/engine"
	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/kv/boltbackend"
	"github.com/unum-cloud/ukvdb/pkg/kv/filebackend"
	"github.com/unum-cloud/ukvdb/pkg/log"
	"github.com/unum-cloud/ukvdb/pkg/metrics"
	"github.com/unum-cloud/ukvdb/pkg/server"
	"github.com/unum-cloud/ukvdb/pkg/server/grpcserver"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var v = viper.New()

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ukvd",
	Short:   "ukvd is the ukv transactional multi-modal key-value daemon",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ukvd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))
	config.BindFlags(rootCmd.Flags(), v)
	cobra.OnInitialize(initLogging)
}

func initLogging() {
	cfg := config.Load(v)
	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load(v)
	logger := log.WithComponent("ukvd")

	backend, err := openBackend(cfg)
	if err != nil {
		return fmt.Errorf("opening persistence backend: %w", err)
	}

	db, err := engine.Open(engine.Config{Backend: backend})
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}

	metricsCollector := metrics.NewCollector(db.Engine())
	metricsCollector.Start()
	defer metricsCollector.Stop()

	metricsAddr := "127.0.0.1:9090"
	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint ready")

	cmdServer := server.NewServer(db)
	errCh := make(chan error, 2)
	go func() {
		if err := cmdServer.Start(cfg.ListenAddr); err != nil {
			errCh <- fmt.Errorf("command server: %w", err)
		}
	}()

	grpcSrv := grpcserver.NewServer(db)
	go func() {
		if err := grpcSrv.Start(cfg.GRPCAddr); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	logger.Info().Str("listen", cfg.ListenAddr).Str("grpc", cfg.GRPCAddr).Msg("ukvd ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = cmdServer.Stop(ctx)
	grpcSrv.Stop()
	return db.Flush()
}

func openBackend(cfg config.Config) (kv.Backend, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		return boltbackend.Open(cfg.DataDir)
	case config.BackendFile:
		return filebackend.Open(cfg.DataDir + "/ukv.snapshot")
	default:
		return nil, nil
	}
}
