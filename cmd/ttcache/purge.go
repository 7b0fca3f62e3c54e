// ABOUTME: Purge command deleting old or excess articles from the cache
// ABOUTME: Starred and published articles survive the retention limit but not an explicit --older-than

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/timeutil"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete old articles from the cache",
	Long: `Delete cached articles. Without flags this runs the regular cleanup:
articles older than purge_after (when configured) and articles of feeds
you are no longer subscribed to.

Examples:
  ttcache purge
  ttcache purge --older-than 30d
  ttcache purge --excess`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		olderThan, _ := cmd.Flags().GetString("older-than")
		excess, _ := cmd.Flags().GetBool("excess")

		var (
			n   int
			err error
		)
		switch {
		case olderThan != "":
			cutoff, perr := timeutil.ParseCutoff(olderThan, time.Now())
			if perr != nil {
				return fmt.Errorf("invalid --older-than %q: %w", olderThan, perr)
			}
			n, err = store.PurgeOlderThan(ctx, cutoff)
		case excess:
			n, err = store.PurgeExcess(ctx, cfg.RetainLimit)
		default:
			n, err = coord.Cleanup(ctx, true)
		}
		if err != nil {
			return fmt.Errorf("failed to purge: %w", err)
		}

		if n > 0 {
			if err := store.RecalculateCounters(ctx, time.Now().Add(-cfg.FreshMaxAge)); err != nil {
				return fmt.Errorf("failed to update counters: %w", err)
			}
		}

		if n == 0 {
			fmt.Println("Nothing to purge")
		} else {
			fmt.Printf("Purged %d articles\n", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().String("older-than", "", "delete articles last updated before: week, month, 30d, or YYYY-MM-DD")
	purgeCmd.Flags().Bool("excess", false, "trim the cache down to retain_limit articles")
	purgeCmd.MarkFlagsMutuallyExclusive("older-than", "excess")
}
