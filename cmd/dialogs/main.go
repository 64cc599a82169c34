package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/omochice/dialog-session/internal/config"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dialogs",
		Short: "Keep a live dialog list in sync with a chat backend.",
		PersistentPreRun: func(*cobra.Command, []string) {
			config.LoadDotenvBestEffort(configPath)
		},
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is ./"+config.FileName+")")
	root.AddCommand(newWatchCmd(os.Stdin, os.Stdout))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
