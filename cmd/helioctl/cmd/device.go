package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/heliowatt/heliowatt/cmd/helioctl/client"
	"github.com/heliowatt/heliowatt/cmd/helioctl/config"
)

var deviceCmd = &cobra.Command{
	Use:     "device",
	Short:   "List, claim and release vendor devices",
	Aliases: []string{"devices"},
}

var deviceListCmd = &cobra.Command{
	Use:   "list <provider>",
	Short: "List the provider's devices with claim annotations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(&config.Global)
		if err != nil {
			return err
		}
		devices, err := c.Devices(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No devices found.")
			return nil
		}
		out, err := yaml.Marshal(devices)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

var deviceClaimCmd = &cobra.Command{
	Use:   "claim <provider> <device-id>",
	Short: "Claim a device for the authenticated user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		kind, _ := cmd.Flags().GetString("kind")
		c, err := client.New(&config.Global)
		if err != nil {
			return err
		}
		device, err := c.Claim(cmd.Context(), args[0], args[1], name, kind)
		if err != nil {
			return err
		}
		fmt.Printf("Claimed device %s (%s).\n", device.DeviceID, device.Name)
		return nil
	},
}

var deviceReleaseCmd = &cobra.Command{
	Use:   "release <provider> <device-id>",
	Short: "Release the user's claim on a device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(&config.Global)
		if err != nil {
			return err
		}
		if err := c.Release(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Released device %s.\n", args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(deviceClaimCmd)
	deviceCmd.AddCommand(deviceReleaseCmd)

	deviceClaimCmd.Flags().String("name", "", "Display name to store with the claim")
	deviceClaimCmd.Flags().String("kind", "", "Device kind (vehicle, battery, solar, charger)")
}
