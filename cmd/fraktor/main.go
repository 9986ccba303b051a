package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "fraktor",
		Short: "fraktor runs and inspects a fraktor actor system",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "fraktor.toml", "path to the actor system config file")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(benchStreamCmd(&configPath))
	root.AddCommand(deadLettersCmd(&configPath))
	return root
}
