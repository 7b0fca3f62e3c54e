// ABOUTME: Offline command toggling work-offline mode in the config file
// ABOUTME: While on, every refresh serves the cache without probing the server

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var offlineCmd = &cobra.Command{
	Use:       "offline [on|off]",
	Short:     "Show or toggle work-offline mode",
	Long:      "While work-offline mode is on, ttcache never contacts the server: reads come from the cache and changes stay queued until it is turned off.",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	Annotations: map[string]string{
		skipCache: "true",
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			if c.WorkOffline {
				color.Yellow("Working offline")
			} else {
				fmt.Println("Online mode")
			}
			return nil
		}

		c.WorkOffline = args[0] == "on"
		path := configSavePath()
		if err := c.SaveTo(path); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		if c.WorkOffline {
			color.Yellow("Working offline (saved to %s)", path)
		} else {
			color.Green("Online mode (saved to %s)", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(offlineCmd)
}
