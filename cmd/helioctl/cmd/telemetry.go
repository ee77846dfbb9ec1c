package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/heliowatt/heliowatt/cmd/helioctl/client"
	"github.com/heliowatt/heliowatt/cmd/helioctl/config"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry <provider>",
	Short: "Show the aggregated telemetry summary across claimed devices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(&config.Global)
		if err != nil {
			return err
		}
		report, err := c.Telemetry(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		if len(report.FailedDevices) > 0 {
			fmt.Printf("Warning: %d device(s) failed to report, summary covers the rest.\n", len(report.FailedDevices))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(telemetryCmd)
}
