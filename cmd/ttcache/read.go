// ABOUTME: Read command for viewing article content
// ABOUTME: Fetches missing content when online, renders Markdown with glamour and marks the article read

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/config"
	"github.com/harper/ttcache/internal/content"
	"github.com/harper/ttcache/internal/models"
	"github.com/harper/ttcache/internal/storage"
)

var readCmd = &cobra.Command{
	Use:   "read <article-id>",
	Short: "Read an article",
	Long:  "Display the full content of an article and mark it as read. Content not yet cached is fetched when the server is reachable.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		noMark, _ := cmd.Flags().GetBool("no-mark")

		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid article id %q", args[0])
		}

		art, err := coord.LoadArticle(ctx, id)
		if art == nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("article not found: %d", id)
			}
			return fmt.Errorf("failed to load article %d: %w", id, err)
		}

		feedTitle := ""
		if f, ferr := store.GetFeed(ctx, art.FeedID); ferr == nil {
			feedTitle = f.Title
		}
		printArticle(art, feedTitle)

		if art.Content == nil {
			printRefreshWarning(err)
		}

		if !noMark && art.Unread {
			if err := coord.RecordLocalMutation(ctx, art.ID, models.MutationRead, true); err != nil {
				return fmt.Errorf("failed to mark article as read: %w", err)
			}
			fmt.Printf("%s\n", faint("Marked as read"))
		}
		return nil
	},
}

func printArticle(art *models.Article, feedTitle string) {
	fmt.Println(strings.Repeat("─", config.SeparatorWidth))

	title := art.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Printf("%s\n\n", bold(title))

	if feedTitle != "" {
		fmt.Printf("%s %s\n", faint("Feed:"), feedTitle)
	}
	if art.Author != "" {
		fmt.Printf("%s %s\n", faint("Author:"), art.Author)
	}
	if !art.Updated.IsZero() {
		fmt.Printf("%s %s\n", faint("Updated:"), art.Updated.Local().Format(config.DateFormatLong))
	}
	if art.URL != "" {
		fmt.Printf("%s %s\n", faint("Link:"), cyan(art.URL))
	}
	if len(art.Labels) > 0 {
		captions := make([]string, len(art.Labels))
		for i, l := range art.Labels {
			captions[i] = l.Caption
		}
		fmt.Printf("%s %s\n", faint("Labels:"), strings.Join(captions, ", "))
	}
	if art.Note != nil && *art.Note != "" {
		fmt.Printf("%s %s\n", faint("Note:"), *art.Note)
	}

	fmt.Println(strings.Repeat("─", config.SeparatorWidth))

	if art.Content == nil || *art.Content == "" {
		fmt.Println("\n(No content available)")
	} else {
		markdown := content.ToMarkdown(*art.Content, art.URL)
		rendered, err := glamour.Render(markdown, "dark")
		if err != nil {
			fmt.Printf("%s\n", faint("(markdown rendering unavailable, showing plain text)"))
			fmt.Printf("\n%s\n", markdown)
		} else {
			fmt.Print(rendered)
		}
	}

	for _, a := range art.Attachments {
		fmt.Printf("%s %s\n", faint("Attachment:"), cyan(a))
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().Bool("no-mark", false, "don't mark the article as read")
}
