package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/peoplesafe/sdlcjournal/internal/mcp"
	"github.com/peoplesafe/sdlcjournal/pkg/journal"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the read-only MCP server
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start a read-only MCP server for AI assistants",
	Long: `Start an MCP server that lets a local AI assistant browse your journal.

The server implements the Model Context Protocol (MCP) over stdio transport.
It never writes to the journal.

Available tools:
  - journal_periods: List weeks, months, quarters and years with entries
  - journal_rollup:  Summary of one period with its reflections
  - journal_search:  Find entries containing a phrase (needs include_entries)
  - journal_stats:   Entry and reflection counts, storage used

Authentication:
  Set SDLCJOURNAL_PASSPHRASE before starting the server.
  The passphrase is read once and immediately cleared from the environment.

  SECURITY NOTE: On Linux, the environment variable may briefly be visible
  via /proc/<pid>/environ before it is cleared.

Policy:
  Create <data-dir>/mcp-policy.yaml (mode 0600) to choose which tools are
  offered and whether entry text may be returned:

    version: 1
    default_action: deny
    allowed_tools: [journal_periods, journal_rollup]
    include_entries: false

  Without a policy file every tool is offered but entry text is withheld.
  An unreadable or insecure policy file restricts the server to
  journal_periods and journal_stats.

Example MCP client configuration:
  {
    "mcpServers": {
      "sdlcjournal": {
        "type": "stdio",
        "command": "/path/to/sdlcjournal",
        "args": ["mcp-server"],
        "env": {
          "SDLCJOURNAL_PASSPHRASE": "your-passphrase"
        }
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer(cmd.Context())
	},
}

func runMCPServer(ctx context.Context) error {
	opts := &mcp.ServerOptions{
		DataDir: cfg.DataDir,
		Logger:  &log,
	}
	if !cfg.Audit {
		opts.JournalOptions = []journal.Option{journal.WithoutAudit()}
	}

	server, err := mcp.NewServer(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer server.Close()

	// ctx is cancelled on SIGINT or SIGTERM by main.
	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
