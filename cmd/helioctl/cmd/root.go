// Package cmd holds the helioctl command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/heliowatt/heliowatt/cmd/helioctl/config"
	"github.com/heliowatt/heliowatt/log"
)

var appLogger log.Logger

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "helioctl is a CLI for the heliowatt provider integration API",
	Long: `A command-line interface for connecting energy vendor accounts,
claiming devices and inspecting aggregated telemetry through a heliowatt server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		appLogger = log.NewZerologAdapter(zerolog.WarnLevel, true)
		if err := config.InitConfig(); err != nil {
			appLogger.Error(cmd.Context(), "failed to load configuration", err)
			return err
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "",
		fmt.Sprintf("config file (default is $HOME/.%s/config.yaml)", config.AppName))
}
