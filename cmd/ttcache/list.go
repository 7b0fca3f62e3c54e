// ABOUTME: List command for viewing cached articles with filtering options
// ABOUTME: Refreshes the selected feed or category when stale, then prints from the cache

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/config"
	"github.com/harper/ttcache/internal/storage"
	"github.com/harper/ttcache/internal/timeutil"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "l"},
	Short:   "List articles",
	Long: `List cached articles, newest first.

--feed accepts real feed ids as well as -1 (starred), -2 (published),
-3 (fresh), -4 (all) and label ids. Without --feed or --category the
global article cache is listed.

Examples:
  ttcache list
  ttcache list --feed -1 --all
  ttcache list --category 3 --since week`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		since, _ := cmd.Flags().GetString("since")
		noRefresh, _ := cmd.Flags().GetBool("no-refresh")
		force, _ := cmd.Flags().GetBool("force")

		if limit < 0 || offset < 0 {
			return fmt.Errorf("--limit and --offset must be non-negative")
		}

		filter := storage.ArticleFilter{
			UnreadOnly: !all,
			Limit:      limit,
			Offset:     offset,
		}
		if cmd.Flags().Changed("feed") {
			id, _ := cmd.Flags().GetInt("feed")
			filter.FeedID = &id
		}
		if cmd.Flags().Changed("category") {
			id, _ := cmd.Flags().GetInt("category")
			filter.CategoryID = &id
		}
		if since != "" {
			cutoff, err := timeutil.ParseCutoff(since, time.Now())
			if err != nil {
				return fmt.Errorf("invalid --since %q: use today, week, month, an age like 3d, or YYYY-MM-DD", since)
			}
			filter.Since = cutoff
		}

		if !noRefresh {
			var err error
			switch {
			case filter.FeedID != nil:
				_, err = coord.RefreshArticles(ctx, *filter.FeedID, false, filter.UnreadOnly, force)
			case filter.CategoryID != nil:
				_, err = coord.RefreshArticles(ctx, *filter.CategoryID, true, filter.UnreadOnly, force)
			default:
				err = coord.RefreshAllArticles(ctx, force)
			}
			printRefreshWarning(err)
		}

		arts, err := coord.Articles(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list articles: %w", err)
		}
		if len(arts) == 0 {
			fmt.Println("No articles found")
			return nil
		}

		for _, a := range arts {
			fmt.Println(articleLine(a))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolP("all", "a", false, "show all articles including read")
	listCmd.Flags().IntP("feed", "f", 0, "filter by feed id (negative ids select virtual feeds)")
	listCmd.Flags().IntP("category", "c", 0, "filter by category id")
	listCmd.Flags().IntP("limit", "n", config.DefaultListLimit, "max articles to show (0 for no limit)")
	listCmd.Flags().IntP("offset", "o", 0, "number of articles to skip (for pagination)")
	listCmd.Flags().StringP("since", "s", "", "only articles updated since: today, yesterday, week, month, 3d, or YYYY-MM-DD")
	listCmd.Flags().Bool("no-refresh", false, "only read the cache")
	listCmd.Flags().BoolP("force", "F", false, "refresh even when the cache is fresh")

	listCmd.MarkFlagsMutuallyExclusive("feed", "category")
	listCmd.MarkFlagsMutuallyExclusive("no-refresh", "force")
}
