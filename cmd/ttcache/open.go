// ABOUTME: Open command for launching an article link in the browser
// ABOUTME: Opens the cached article URL and queues it as read

package main

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/models"
	"github.com/harper/ttcache/internal/storage"
)

var openCmd = &cobra.Command{
	Use:   "open <article-id>",
	Short: "Open article link in browser and mark as read",
	Long:  "Open a cached article's link in your default browser and mark the article as read. Works offline; the read state is pushed on the next sync.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid article id %q", args[0])
		}

		art, err := coord.Article(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("article not found: %d", id)
		}
		if err != nil {
			return err
		}

		link, err := articleLink(art)
		if err != nil {
			return err
		}
		if err := openBrowser(link); err != nil {
			return fmt.Errorf("failed to open browser: %w", err)
		}

		if art.Unread {
			if err := coord.RecordLocalMutation(ctx, art.ID, models.MutationRead, true); err != nil {
				return fmt.Errorf("failed to mark article as read: %w", err)
			}
		}

		title := art.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Printf("%s Opened and marked as read: %s\n", green("✓"), title)
		return nil
	},
}

// articleLink returns the article URL when it is an http or https link.
func articleLink(art *models.Article) (string, error) {
	if art.URL == "" {
		return "", fmt.Errorf("article has no link")
	}
	u, err := url.Parse(art.URL)
	if err != nil {
		return "", fmt.Errorf("article has malformed link: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("article link must be http or https, got: %s", u.Scheme)
	}
	return u.String(), nil
}

func openBrowser(link string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", link)
	case "linux":
		cmd = exec.Command("xdg-open", link)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", link)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap asynchronously.
	go cmd.Wait()
	return nil
}

func init() {
	rootCmd.AddCommand(openCmd)
}
