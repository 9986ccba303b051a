package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/babyman/fraktor/internal/config"
	"github.com/babyman/fraktor/internal/system"
)

func deadLettersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dead-letters",
		Short: "boot a system, report that its dead-letter ring is ready, and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			sysCfg := system.DefaultConfig(cfg.System.Name)
			sys := system.NewSystemState(sysCfg)
			sys.Start()
			fmt.Printf("system %q booted; dead-letter ring ready\n", cfg.System.Name)
			return nil
		},
	}
}
