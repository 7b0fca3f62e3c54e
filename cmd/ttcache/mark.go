// ABOUTME: Mark command for changing read, star and publish flags
// ABOUTME: Changes apply to the cache at once and are queued for the server; --feed/--category catch up a whole feed

package main

import (
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/models"
)

var markCmd = &cobra.Command{
	Use:   "mark <read|unread|star|unstar|publish|unpublish> [article-id...]",
	Short: "Change article flags",
	Long: `Set a flag on one or more articles. Changes are applied locally and
delivered to the server on the next sync, so this works offline.

With --feed or --category and no article ids, every cached unread article
of that feed or category is marked read.

Examples:
  ttcache mark read 4821 4822
  ttcache mark star 4821
  ttcache mark read --feed 7
  ttcache mark read --category 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, value, err := parseMarkAction(args[0])
		if err != nil {
			return err
		}

		feedSet := cmd.Flags().Changed("feed")
		catSet := cmd.Flags().Changed("category")
		if feedSet || catSet {
			if len(args) > 1 {
				return fmt.Errorf("cannot combine article ids with --feed or --category")
			}
			if kind != models.MutationRead || !value {
				return fmt.Errorf("--feed and --category only support 'mark read'")
			}
			id, _ := cmd.Flags().GetInt("feed")
			if catSet {
				id, _ = cmd.Flags().GetInt("category")
			}
			n, err := coord.MarkFeedRead(ctx, id, catSet)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Println("No unread articles to mark")
			} else {
				fmt.Printf("Marked %d articles as read\n", n)
			}
			return nil
		}

		ids, err := parseArticleIDs(args[1:])
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("provide article ids, or --feed/--category for 'mark read'")
		}

		for _, id := range ids {
			if err := coord.RecordLocalMutation(ctx, id, kind, value); err != nil {
				return fmt.Errorf("failed to mark article %d: %w", id, err)
			}
		}
		fmt.Printf("Marked %d article(s) %s\n", len(ids), args[0])
		return nil
	},
}

// parseMarkAction maps a mark verb to the mutation it records.
func parseMarkAction(action string) (models.MutationKind, bool, error) {
	switch action {
	case "read":
		return models.MutationRead, true, nil
	case "unread":
		return models.MutationRead, false, nil
	case "star":
		return models.MutationStar, true, nil
	case "unstar":
		return models.MutationStar, false, nil
	case "publish":
		return models.MutationPublish, true, nil
	case "unpublish":
		return models.MutationPublish, false, nil
	}
	return "", false, fmt.Errorf("unknown action %q: use read, unread, star, unstar, publish or unpublish", action)
}

func parseArticleIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid article id %q", a)
		}
		ids = append(ids, id)
	}
	return lo.Uniq(ids), nil
}

func init() {
	rootCmd.AddCommand(markCmd)

	markCmd.Flags().IntP("feed", "f", 0, "mark every unread article of this feed")
	markCmd.Flags().IntP("category", "c", 0, "mark every unread article of this category")
	markCmd.MarkFlagsMutuallyExclusive("feed", "category")
}
