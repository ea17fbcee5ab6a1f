package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/reprocess/internal/devserver"
	"github.com/fentz26/reprocess/internal/logging"
	"github.com/fentz26/reprocess/internal/scheduler"
	"github.com/spf13/cobra"
)

var (
	devAddr     string
	devSeed     bool
	devRunDelay time.Duration
	devWorkers  int
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local backend with simulated reruns",
	Long: `Starts an in-memory reprocessing backend for local use and tests.
Reruns are simulated; no orchestration system is contacted.
Accounts: admin/admin123 (admin) and viewer/viewer123 (viewer).`,
	RunE: runDevserver,
}

func init() {
	devserverCmd.Flags().StringVar(&devAddr, "addr", "127.0.0.1:8000", "Listen address")
	devserverCmd.Flags().BoolVar(&devSeed, "seed", true, "Create a sample plan on startup")
	devserverCmd.Flags().DurationVar(&devRunDelay, "run-delay", 2*time.Second, "Duration of each simulated rerun")
	devserverCmd.Flags().IntVar(&devWorkers, "workers", scheduler.DefaultConfig().GlobalMax, "Maximum concurrent simulated reruns")
}

func runDevserver(cmd *cobra.Command, args []string) error {
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	schedCfg := scheduler.DefaultConfig()
	schedCfg.GlobalMax = devWorkers

	server := devserver.NewServer(devserver.Options{
		Addr:      devAddr,
		Scheduler: schedCfg,
		RunDelay:  devRunDelay,
		Seed:      devSeed,
		Logger:    logger,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
			server.Shutdown(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
