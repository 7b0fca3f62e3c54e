// ABOUTME: Categories command listing cached categories with unread counts
// ABOUTME: Refreshes from the server first when the cache is stale and the server is reachable

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	Aliases: []string{"cats"},
	Short:   "List categories",
	Long: `List cached categories with their unread counts.

With --virtual the special categories (starred -1, published -2, fresh -3,
all -4) and labels (ids below -10) are listed first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		virtual, _ := cmd.Flags().GetBool("virtual")
		noRefresh, _ := cmd.Flags().GetBool("no-refresh")
		force, _ := cmd.Flags().GetBool("force")

		if !noRefresh {
			_, err := coord.RefreshCategories(ctx, force)
			if err == nil && virtual {
				_, err = coord.RefreshVirtualCategories(ctx, force)
			}
			printRefreshWarning(err)
		}

		cats, err := coord.Categories(ctx, virtual)
		if err != nil {
			return fmt.Errorf("failed to list categories: %w", err)
		}
		if len(cats) == 0 {
			fmt.Println("No categories cached")
			return nil
		}

		for _, c := range cats {
			unread := faint("   -")
			if c.Unread > 0 {
				unread = bold(fmt.Sprintf("%4d", c.Unread))
			}
			fmt.Printf("%s %s %s\n", faint(fmt.Sprintf("%5d", c.ID)), unread, c.Title)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)

	categoriesCmd.Flags().BoolP("virtual", "v", false, "include virtual categories and labels")
	categoriesCmd.Flags().Bool("no-refresh", false, "only read the cache")
	categoriesCmd.Flags().BoolP("force", "F", false, "refresh even when the cache is fresh")
	categoriesCmd.MarkFlagsMutuallyExclusive("no-refresh", "force")
}
