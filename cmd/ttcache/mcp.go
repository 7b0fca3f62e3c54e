// ABOUTME: MCP server command for ttcache CLI
// ABOUTME: Serves the cache over stdio while the sync loop runs in the background

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harper/ttcache/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agents",
	Long: `Start the Model Context Protocol (MCP) server on stdio.

This allows AI agents like Claude to browse cached categories, feeds and
articles, search them, and star or mark articles read. Everything works
offline; changes are delivered to the server in the background.

The server communicates via JSON-RPC on stdin/stdout. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("sync loop stopped", "err", err)
			}
		}()

		server := mcp.NewServer(coord, Version, mcp.WithLogger(logger))
		err := server.Serve(ctx, os.Stdin, os.Stdout)
		cancel()
		<-done
		if err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
