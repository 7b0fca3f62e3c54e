// ABOUTME: Search command running full-text search over cached articles
// ABOUTME: Works offline; matches titles and content

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/config"
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search cached articles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		query := strings.Join(args, " ")

		arts, err := coord.Search(cmd.Context(), query, limit)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if len(arts) == 0 {
			fmt.Println("No matches")
			return nil
		}
		for _, a := range arts {
			fmt.Println(articleLine(a))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntP("limit", "n", config.DefaultListLimit, "max results")
}
