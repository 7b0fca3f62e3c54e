// ABOUTME: Export and import commands for OPML subscription lists
// ABOUTME: Export works offline from the cache; import subscribes each new feed on the server

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/models"
	"github.com/harper/ttcache/internal/opml"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export subscriptions as OPML to stdout",
	Long:  "Write the cached categories and feeds in OPML format to standard output for backup or import elsewhere.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cats, err := coord.Categories(ctx, false)
		if err != nil {
			return fmt.Errorf("failed to list categories: %w", err)
		}
		feeds, err := coord.Feeds(ctx, int(models.VirtualAll))
		if err != nil {
			return fmt.Errorf("failed to list feeds: %w", err)
		}
		return opml.FromCache("ttcache subscriptions", cats, feeds).Write(os.Stdout)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.opml>",
	Short: "Subscribe to every feed in an OPML file",
	Long: `Subscribe to the feeds listed in an OPML file. Folders are matched to
existing categories by title; feeds in unknown folders go to Uncategorized.
Feeds already subscribed are skipped. Requires the server to be reachable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		doc, err := opml.Parse(f)
		if err != nil {
			return err
		}

		cats, err := coord.Categories(ctx, false)
		if err != nil {
			return fmt.Errorf("failed to list categories: %w", err)
		}
		existing, err := coord.Feeds(ctx, int(models.VirtualAll))
		if err != nil {
			return fmt.Errorf("failed to list feeds: %w", err)
		}
		subscribed := make(map[string]bool, len(existing))
		for _, f := range existing {
			subscribed[f.URL] = true
		}

		added, skipped := 0, 0
		for _, feed := range doc.AllFeeds() {
			if subscribed[feed.URL] {
				skipped++
				continue
			}
			if _, err := coord.Subscribe(ctx, feed.URL, categoryForFolder(cats, feed.Folder)); err != nil {
				color.Yellow("Failed: %s: %v", feed.URL, err)
				continue
			}
			subscribed[feed.URL] = true
			added++
			fmt.Printf("%s %s\n", color.GreenString("subscribed"), feed.Title)
		}

		fmt.Printf("Imported %d feed(s), skipped %d already subscribed\n", added, skipped)
		return nil
	},
}

// categoryForFolder finds the category titled folder, ignoring case.
func categoryForFolder(cats []models.Category, folder string) int {
	if folder == "" {
		return models.Uncategorized
	}
	for _, c := range cats {
		if !c.IsVirtual() && strings.EqualFold(c.Title, folder) {
			return c.ID
		}
	}
	return models.Uncategorized
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
