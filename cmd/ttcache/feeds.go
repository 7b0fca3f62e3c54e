// ABOUTME: Feeds command listing cached subscriptions
// ABOUTME: Optionally limited to one category; refreshes the feed list when stale

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/models"
)

var feedsCmd = &cobra.Command{
	Use:     "feeds",
	Aliases: []string{"feed", "f"},
	Short:   "List feeds",
	Long:    "List cached feeds with unread counts, optionally only those of one category",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		category, _ := cmd.Flags().GetInt("category")
		noRefresh, _ := cmd.Flags().GetBool("no-refresh")
		force, _ := cmd.Flags().GetBool("force")

		if !noRefresh {
			_, err := coord.RefreshFeeds(ctx, force)
			printRefreshWarning(err)
		}

		feeds, err := coord.Feeds(ctx, category)
		if err != nil {
			return fmt.Errorf("failed to list feeds: %w", err)
		}
		if len(feeds) == 0 {
			fmt.Println("No feeds cached")
			return nil
		}

		for _, f := range feeds {
			unread := faint("   -")
			if f.Unread > 0 {
				unread = bold(fmt.Sprintf("%4d", f.Unread))
			}
			fmt.Printf("%s %s %s %s\n", faint(fmt.Sprintf("%5d", f.ID)), unread, f.Title, faint(f.URL))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(feedsCmd)

	feedsCmd.Flags().IntP("category", "c", int(models.VirtualAll), "only feeds of this category id")
	feedsCmd.Flags().Bool("no-refresh", false, "only read the cache")
	feedsCmd.Flags().BoolP("force", "F", false, "refresh even when the cache is fresh")
	feedsCmd.MarkFlagsMutuallyExclusive("no-refresh", "force")
}
