package main

import (
	"os"

	"github.com/liuscraft/jowie/internal/config"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "jowie",
		Short:         "Jowie is a local voice assistant",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "config file path (.json or .toml)")

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(transcribeCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
