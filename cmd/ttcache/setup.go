// ABOUTME: Cobra command for interactive ttcache server configuration.
// ABOUTME: Runs the bubbletea wizard, checks the credentials with a login, then saves the config.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/config"
	"github.com/harper/ttcache/internal/remote"
	"github.com/harper/ttcache/internal/ttrss"
	"github.com/harper/ttcache/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure the Tiny Tiny RSS server",
	Long: `Interactive wizard to configure the server URL, username and password.

The credentials are checked with a login before saving. Rejected
credentials are not saved; an unreachable server only produces a warning,
so setup works offline. Use --no-verify to skip the check.`,
	Annotations: map[string]string{
		skipCache: "true",
	},
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().Bool("no-verify", false, "save without logging in to the server")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	noVerify, _ := cmd.Flags().GetBool("no-verify")

	c, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	final, err := tea.NewProgram(tui.NewSetupModel(tui.Credentials{
		ServerURL: c.ServerURL,
		Username:  c.Username,
		Password:  c.Password,
	})).Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	wizard := final.(tui.SetupModel)
	if !wizard.ShouldSave() {
		fmt.Println("Setup canceled.")
		return nil
	}
	applyCredentials(c, wizard.Result())

	if !noVerify {
		if err := verifyCredentials(cmd.Context(), c); err != nil {
			return err
		}
	}

	path := configSavePath()
	if err := c.SaveTo(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("Config saved to %s\n", path)
	return nil
}

// applyCredentials copies the wizard's answers; an empty password keeps the old one.
func applyCredentials(c *config.Config, creds tui.Credentials) {
	c.ServerURL = creds.ServerURL
	c.Username = creds.Username
	if creds.Password != "" {
		c.Password = creds.Password
	}
}

// verifyCredentials logs in once. Only a rejection is an error.
func verifyCredentials(ctx context.Context, c *config.Config) error {
	client, err := ttrss.New(ttrss.Config{
		ServerURL: c.ServerURL,
		Username:  c.Username,
		Password:  c.Password,
		Timeout:   c.HTTPTimeout,
	}, ttrss.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("invalid server settings: %w", err)
	}

	level, err := client.Login(ctx)
	switch {
	case err == nil:
		fmt.Printf("%s logged in as %s (API level %d)\n", green("✓"), c.Username, level)
		return nil
	case errors.Is(err, remote.ErrAuth):
		return fmt.Errorf("server rejected the credentials, config not saved: %w", err)
	default:
		fmt.Printf("%s could not verify credentials: %v\n", yellow("!"), err)
		return nil
	}
}
