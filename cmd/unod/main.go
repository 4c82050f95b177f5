package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"cosmossdk.io/log"
	"github.com/cometbft/cometbft/abci/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"onchainuno/internal/app"
	"onchainuno/internal/store"
)

const envPrefix = "UNOD"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "unod",
		Short:         "onchainuno ABCI daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run()
		},
	}

	cmd.Flags().String("home", ".uno", "app home directory (state is stored under <home>/app)")
	cmd.Flags().String("addr", "tcp://127.0.0.1:26658", "ABCI listen address")
	cmd.Flags().String("transport", "socket", "ABCI transport (socket|grpc)")
	cmd.Flags().String("store", "file", "state store backend (file|sqlite)")
	cmd.Flags().String("log-level", "info", "log level (trace|debug|info|warn|error)")
	cmd.Flags().String("log-format", "plain", "log format (plain|json)")

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		panic(err)
	}

	return cmd
}

func newLogger() (log.Logger, error) {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	opts := []log.Option{log.LevelOption(level)}
	if viper.GetString("log-format") == "json" {
		opts = append(opts, log.OutputJSONOption())
	}
	return log.NewLogger(os.Stderr, opts...), nil
}

func newStore(appHome string) (store.Store, error) {
	if err := os.MkdirAll(appHome, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir app home: %w", err)
	}
	switch backend := viper.GetString("store"); backend {
	case "file":
		return store.NewFileStore(appHome), nil
	case "sqlite":
		return store.NewSQLiteStore(filepath.Join(appHome, "state.db"))
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func run() error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	db, err := newStore(filepath.Join(viper.GetString("home"), "app"))
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer func() { _ = db.Close() }()

	a, err := app.New(db, logger.With("module", "app"))
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	addr := viper.GetString("addr")
	transport := viper.GetString("transport")
	srv, err := server.NewServer(addr, transport, a)
	if err != nil {
		return fmt.Errorf("start abci server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("abci server start: %w", err)
	}
	defer func() { _ = srv.Stop() }()

	logger.Info("abci server listening", "addr", addr, "transport", transport,
		"store", viper.GetString("store"))

	// Wait for signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")
	return nil
}
