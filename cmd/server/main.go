package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omochice/dialog-session/internal/backend"
	"github.com/omochice/dialog-session/internal/config"
	"github.com/omochice/dialog-session/internal/logging"
)

const shutdownTimeout = 5 * time.Second

var configPath string

func newRootCmd() *cobra.Command {
	var listen, database, logLevel string
	root := &cobra.Command{
		Use:   "dialogs-server",
		Short: "Serve the dialogs protocol over WebSocket",
		Args:  cobra.NoArgs,
		PersistentPreRun: func(*cobra.Command, []string) {
			config.LoadDotenvBestEffort(configPath)
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}
			if cmd.Flags().Changed("database") {
				cfg.Database = database
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			return serve(cfg)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is ./"+config.FileName+")")
	root.Flags().StringVar(&listen, "listen", ":8080", "address to listen on")
	root.Flags().StringVar(&database, "database", "", "SQLite database path; dialogs are kept in memory when empty")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return root
}

func openStore(path string) (backend.Store, error) {
	if path == "" {
		return backend.NewMemoryStore(), nil
	}
	return backend.NewSQLiteStore(path)
}

func serve(cfg *config.Config) error {
	log, closer, err := logging.Open(cfg.LogFile, logging.Config{Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer closer.Close()

	store, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := backend.New(store, log)
	if err := srv.Listen(cfg.Listen); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve()
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
