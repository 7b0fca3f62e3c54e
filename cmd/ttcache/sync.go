// ABOUTME: Sync command delivering queued local changes and refreshing stale data
// ABOUTME: Also lists the pending-change queue with 'ttcache pending'

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/config"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued changes and refresh stale data",
	Long: `Deliver locally queued read, star, publish and note changes to the server,
then refresh whatever is stale. Changes the server rejects stay queued for
the next sync; changes for articles the server no longer has are dropped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pushOnly, _ := cmd.Flags().GetBool("push-only")
		force, _ := cmd.Flags().GetBool("force")

		res, perr := coord.PushPendingMutations(ctx)
		switch {
		case perr != nil:
			color.Yellow("Push incomplete: %v", perr)
		case res.Pushed+res.Dropped == 0:
			fmt.Println("No queued changes")
		default:
			color.Green("Pushed %d change(s)", res.Pushed)
		}
		if res.Dropped > 0 {
			fmt.Printf("  %s\n", faint(fmt.Sprintf("dropped %d for articles the server no longer has", res.Dropped)))
		}
		if res.Failed > 0 {
			fmt.Printf("  %s\n", faint(fmt.Sprintf("%d change(s) still queued", res.Failed)))
		}

		if pushOnly {
			return perr
		}
		if err := coord.RefreshAll(ctx, force); err != nil {
			printRefreshWarning(err)
			return nil
		}
		color.Green("Cache refreshed")
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List changes waiting for the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		muts, err := coord.PendingMutations(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list pending changes: %w", err)
		}
		if len(muts) == 0 {
			fmt.Println("No queued changes")
			return nil
		}
		for _, m := range muts {
			value := fmt.Sprintf("%t", m.Value)
			if m.Note != "" {
				value = fmt.Sprintf("%q", m.Note)
			}
			fmt.Printf("%s %8d %-8s %s %s\n",
				faint(shortID(m.ID)), m.ArticleID, m.Kind, value,
				faint(m.CreatedAt.Local().Format(config.DateFormatShort)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pendingCmd)

	syncCmd.Flags().Bool("push-only", false, "only deliver queued changes")
	syncCmd.Flags().BoolP("force", "F", false, "refresh every scope even when fresh")
}
