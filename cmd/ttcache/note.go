// ABOUTME: Note command for attaching a note to an article
// ABOUTME: Queued for the server like flag changes; an empty note clears it

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var noteCmd = &cobra.Command{
	Use:   "note <article-id> [text...]",
	Short: "Set or clear an article note",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid article id %q", args[0])
		}
		text := strings.Join(args[1:], " ")

		if err := coord.SetNote(cmd.Context(), id, text); err != nil {
			return err
		}
		if text == "" {
			fmt.Println("Note cleared")
		} else {
			fmt.Println("Note saved")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(noteCmd)
}
