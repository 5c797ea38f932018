package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/notebridge/marksync/pkg/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the bridge configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the bridge configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := apiClient(cmd).GetConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render config: %v", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update top-level configuration fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient(cmd)
		cfg, err := c.GetConfig()
		if err != nil {
			return err
		}

		changed := false
		if cmd.Flags().Changed("auto-sync") {
			autoSync, _ := cmd.Flags().GetBool("auto-sync")
			cfg.AutoSync = autoSync
			changed = true
		}
		if cmd.Flags().Changed("active-client") {
			active, _ := cmd.Flags().GetString("active-client")
			cfg.ActiveClientID = active
			changed = true
		}
		if !changed {
			return fmt.Errorf("nothing to change; pass --auto-sync or --active-client")
		}

		if err := c.PutConfig(cfg); err != nil {
			return err
		}
		fmt.Println("✓ Configuration updated")
		return nil
	},
}

var configApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a bridge configuration from a YAML file",
	Long: `Apply a full bridge configuration from a YAML file.

Example file:

  autoSync: true
  activeClientId: laptop
  profiles:
    - clientId: laptop
      url: http://127.0.0.1:27123/payload
      wsUrl: ws://127.0.0.1:27123/ws
      token: secret
      enabled: true
      priority: 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")

		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read file: %v", err)
		}

		var cfg types.BridgeConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse YAML: %v", err)
		}
		if len(cfg.Profiles) == 0 {
			return fmt.Errorf("config must declare at least one profile")
		}

		if err := apiClient(cmd).PutConfig(&cfg); err != nil {
			return err
		}
		fmt.Printf("✓ Applied configuration (%d profiles)\n", len(cfg.Profiles))
		return nil
	},
}

func init() {
	configSetCmd.Flags().Bool("auto-sync", true, "Enable or disable the periodic sync alarms")
	configSetCmd.Flags().String("active-client", "", "Profile id the session should prefer")

	configApplyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = configApplyCmd.MarkFlagRequired("file")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configApplyCmd)

	rootCmd.AddCommand(configCmd)
}
