package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type rootCmdConfig struct {
	configPath string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cliParser().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func cliParser() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "anomalyscore",
		Short:        "anomalyscore scores records against trained anomaly detectors",
		Long:         `A tool to rebuild trained isolation-forest anomaly detectors locally and score records offline`,
		SilenceUsage: true,
	}
	config := &rootCmdConfig{}
	rootCmd.PersistentFlags().StringVar(&(config.configPath), "config", "", "path to a YAML configuration file (defaults to $ANOMALY_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&(config.verbose), "verbose", "v", false, "log at debug level in a human readable format")
	rootCmd.AddCommand(versionCmd(), scoreCmd(config), serveCmd(config), cacheCmd(config), filterCmd(config))
	return rootCmd
}
