// ABOUTME: Subscribe and unsubscribe commands managing server subscriptions
// ABOUTME: Subscribe discovers the feed behind a page URL and validates it with gofeed before asking the server

package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/discover"
	"github.com/harper/ttcache/internal/fetch"
	"github.com/harper/ttcache/internal/parse"
)

var subscribeCmd = &cobra.Command{
	Use:     "subscribe <url>",
	Aliases: []string{"sub"},
	Short:   "Subscribe to a feed",
	Long: `Subscribe to a feed on the server. A page URL is searched for its feed
(link tags, then common paths such as /feed and /rss.xml) unless
--no-discover is given. Requires the server to be reachable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		category, _ := cmd.Flags().GetInt("category")
		noDiscover, _ := cmd.Flags().GetBool("no-discover")

		feedURL := args[0]
		title := ""
		if noDiscover {
			res, err := fetch.Fetch(ctx, feedURL, nil, nil)
			if err != nil {
				return fmt.Errorf("failed to fetch feed: %w", err)
			}
			feed, err := parse.Parse(res.Body)
			if err != nil {
				return fmt.Errorf("not a feed: %s: %w", feedURL, err)
			}
			title = feed.Title
		} else {
			found, err := discover.Discover(ctx, feedURL)
			if err != nil {
				return fmt.Errorf("failed to discover feed: %w", err)
			}
			feedURL = found.URL
			title = found.Title
			if feedURL != args[0] {
				fmt.Printf("%s %s\n", faint("Discovered:"), feedURL)
			}
		}

		id, err := coord.Subscribe(ctx, feedURL, category)
		if err != nil && id == 0 {
			return err
		}
		if title == "" {
			title = feedURL
		}
		color.Green("Subscribed to %s (feed %d)", title, id)
		printRefreshWarning(err)
		return nil
	},
}

var unsubscribeCmd = &cobra.Command{
	Use:     "unsubscribe <feed-id>",
	Aliases: []string{"unsub"},
	Short:   "Unsubscribe from a feed",
	Long:    "Remove a feed on the server and drop it and its articles from the cache. Requires the server to be reachable.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid feed id %q", args[0])
		}
		if err := coord.Unsubscribe(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Unsubscribed from feed %d\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(unsubscribeCmd)

	subscribeCmd.Flags().IntP("category", "c", 0, "category id to file the feed under (0 = uncategorized)")
	subscribeCmd.Flags().Bool("no-discover", false, "treat the URL as the feed itself")
}
