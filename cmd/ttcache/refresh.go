// ABOUTME: Refresh command pulling fresh data from the server into the cache
// ABOUTME: Refreshes everything, or the named scopes concurrently on the coordinator's worker pool

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/staleness"
	ttsync "github.com/harper/ttcache/internal/sync"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [scope...]",
	Short: "Refresh cached data from the server",
	Long: `Refresh stale data from the server. Without arguments categories, feeds,
virtual categories and the global article cache are refreshed.

Scopes: categories, virtual_categories, feeds, counters, all_articles,
articles:<feed-id>, category_articles:<category-id>.

Examples:
  ttcache refresh
  ttcache refresh --force
  ttcache refresh articles:-1 feeds`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		force, _ := cmd.Flags().GetBool("force")

		if len(args) == 0 {
			if err := coord.RefreshAll(ctx, force); err != nil {
				return fmt.Errorf("refresh incomplete: %w", err)
			}
			color.Green("Cache refreshed")
			return nil
		}

		scopes := make([]staleness.Scope, 0, len(args))
		for _, a := range args {
			s, err := staleness.ParseScope(a)
			if err != nil {
				return err
			}
			scopes = append(scopes, s)
		}

		pending := make([]<-chan ttsync.Result, len(scopes))
		for i, s := range scopes {
			pending[i] = coord.RequestRefresh(ctx, s, force)
		}

		failed := 0
		for _, ch := range pending {
			res := <-ch
			switch {
			case res.Fetched:
				fmt.Printf("%s %s\n", color.GreenString("refreshed"), res.Scope)
			case res.FellBack:
				failed++
				reason := "served from cache"
				if res.Err != nil {
					reason = res.Err.Error()
				} else if err := coord.LastError(); err != nil {
					reason = err.Error()
				}
				fmt.Printf("%s %s %s\n", color.YellowString("failed"), res.Scope, faint(reason))
			default:
				fmt.Printf("%s %s\n", faint("fresh"), res.Scope)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d scopes could not be refreshed", failed, len(scopes))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().BoolP("force", "F", false, "refresh even when the cache is fresh")
}
