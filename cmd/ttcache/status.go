// ABOUTME: Status command reporting cache contents and sync state
// ABOUTME: Shows counts, queued changes, connectivity, per-scope refresh times and the last error

package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := coord.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read status: %w", err)
		}

		fmt.Printf("%s %s\n", faint("Server:"), cfg.ServerURL)
		switch {
		case st.WorkOffline:
			fmt.Printf("%s %s\n", faint("Connection:"), color.YellowString("working offline"))
		case st.Online:
			fmt.Printf("%s %s\n", faint("Connection:"), color.GreenString("online"))
		default:
			fmt.Printf("%s %s\n", faint("Connection:"), color.RedString("unreachable"))
		}

		s := st.Stats
		fmt.Printf("\n  Categories: %d\n", s.Categories)
		fmt.Printf("  Feeds: %d\n", s.Feeds)
		fmt.Printf("  Articles: %d (%d unread, %d starred, %d published, %d with content)\n",
			s.Articles, s.Unread, s.Starred, s.Published, s.WithContent)
		fmt.Printf("  Queued changes: %d\n", s.PendingMutations)

		if len(st.LastRefresh) > 0 {
			fmt.Printf("\n%s (window %s)\n", faint("Last refresh:"), st.UpdateWindow)
			scopes := make([]string, 0, len(st.LastRefresh))
			for k := range st.LastRefresh {
				scopes = append(scopes, k)
			}
			sort.Strings(scopes)
			for _, k := range scopes {
				at := st.LastRefresh[k]
				age := time.Since(at).Round(time.Second)
				fmt.Printf("  %-28s %s %s\n", k, at.Local().Format(config.DateFormatShort), faint(fmt.Sprintf("(%s ago)", age)))
			}
		}

		if st.LastError != "" {
			fmt.Printf("\n%s %s\n", faint("Last error:"), color.RedString(st.LastError))
		}
		if st.RemoteError != "" && st.RemoteError != st.LastError {
			fmt.Printf("%s %s\n", faint("Server said:"), st.RemoteError)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
