package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heliowatt/heliowatt/cmd/helioctl/client"
	"github.com/heliowatt/heliowatt/cmd/helioctl/config"
)

var providerCmd = &cobra.Command{
	Use:     "provider",
	Short:   "Manage vendor account connections",
	Aliases: []string{"providers"},
}

var providerAuthURLCmd = &cobra.Command{
	Use:   "auth-url <provider>",
	Short: "Print the vendor authorization URL to open in a browser",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		redirectURI, _ := cmd.Flags().GetString("redirect-uri")
		c, err := client.New(&config.Global)
		if err != nil {
			return err
		}
		authURL, err := c.AuthURL(cmd.Context(), args[0], redirectURI)
		if err != nil {
			return err
		}
		fmt.Println(authURL)
		return nil
	},
}

var providerExchangeCmd = &cobra.Command{
	Use:   "exchange <provider> <code>",
	Short: "Complete an authorization with the code returned by the vendor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		redirectURI, _ := cmd.Flags().GetString("redirect-uri")
		c, err := client.New(&config.Global)
		if err != nil {
			return err
		}
		if err := c.Exchange(cmd.Context(), args[0], args[1], redirectURI); err != nil {
			return err
		}
		fmt.Printf("Provider %s connected.\n", args[0])
		return nil
	},
}

var providerValidateCmd = &cobra.Command{
	Use:   "validate-key",
	Short: "Connect the solaredge provider with an API key and site id",
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey, _ := cmd.Flags().GetString("api-key")
		siteID, _ := cmd.Flags().GetInt64("site-id")
		if apiKey == "" || siteID == 0 {
			return fmt.Errorf("--api-key and --site-id are required")
		}
		c, err := client.New(&config.Global)
		if err != nil {
			return err
		}
		site, err := c.ValidateAPIKey(cmd.Context(), apiKey, siteID)
		if err != nil {
			return err
		}
		fmt.Printf("Connected site %d (%s), peak power %.2f kW.\n", site.SiteID, site.Name, site.PeakPowerKW)
		return nil
	},
}

var providerLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Connect the wallbox provider with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if email == "" || password == "" {
			return fmt.Errorf("--email and --password are required")
		}
		c, err := client.New(&config.Global)
		if err != nil {
			return err
		}
		if err := c.Login(cmd.Context(), email, password); err != nil {
			return err
		}
		fmt.Println("Provider wallbox connected.")
		return nil
	},
}

var providerStatusCmd = &cobra.Command{
	Use:   "status <provider>",
	Short: "Show whether a provider is connected",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(&config.Global)
		if err != nil {
			return err
		}
		connected, err := c.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if connected {
			fmt.Printf("%s: connected\n", args[0])
		} else {
			fmt.Printf("%s: not connected\n", args[0])
		}
		return nil
	},
}

var providerDisconnectCmd = &cobra.Command{
	Use:   "disconnect <provider>",
	Short: "Remove the stored credential for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(&config.Global)
		if err != nil {
			return err
		}
		if err := c.Disconnect(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Provider %s disconnected.\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providerCmd)
	providerCmd.AddCommand(providerAuthURLCmd)
	providerCmd.AddCommand(providerExchangeCmd)
	providerCmd.AddCommand(providerValidateCmd)
	providerCmd.AddCommand(providerLoginCmd)
	providerCmd.AddCommand(providerStatusCmd)
	providerCmd.AddCommand(providerDisconnectCmd)

	providerAuthURLCmd.Flags().String("redirect-uri", "", "Redirect URI registered with the vendor")
	providerExchangeCmd.Flags().String("redirect-uri", "", "Redirect URI used when requesting the authorization URL")
	providerValidateCmd.Flags().String("api-key", "", "Vendor API key")
	providerValidateCmd.Flags().Int64("site-id", 0, "Vendor site id the key belongs to")
	providerLoginCmd.Flags().String("email", "", "Vendor account email")
	providerLoginCmd.Flags().String("password", "", "Vendor account password")
}
