package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/babyman/fraktor/internal/config"
	"github.com/babyman/fraktor/internal/pathreg"
	"github.com/babyman/fraktor/internal/system"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "boot an actor system and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	sysCfg := system.DefaultConfig(cfg.System.Name)
	if cfg.System.CanonicalHost != "" {
		sysCfg.Authority = pathreg.Authority{Host: cfg.System.CanonicalHost, Port: int(cfg.System.CanonicalPort)}
	}
	sysCfg.MailboxCapacity = cfg.System.MailboxCapacity
	sysCfg.QuarantineDuration = cfg.QuarantineDuration()

	sys := system.NewSystemState(sysCfg)
	sys.Start()
	logger.Info("actor system started", "name", cfg.System.Name)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	logger.Info("shutdown signal received")
	sys.Shutdown("operator requested shutdown")
	<-sys.Termination()
	return nil
}
