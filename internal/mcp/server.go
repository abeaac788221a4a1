// Package mcp implements a read-only MCP (Model Context Protocol) server that
// lets a local assistant browse journal periods and rollups.
//
// The server never writes. What it may return is governed by the policy in
// <data_dir>/mcp-policy.yaml; without one, entry text is withheld and only
// reflections, counts and period listings are exposed.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/peoplesafe/sdlcjournal/internal/config"
	"github.com/peoplesafe/sdlcjournal/pkg/audit"
	"github.com/peoplesafe/sdlcjournal/pkg/journal"
)

// PassphraseEnv is read (and then unset) when no passphrase is passed in.
const PassphraseEnv = "SDLCJOURNAL_PASSPHRASE"

// Version is reported to MCP clients.
var Version = "dev"

// Server represents the MCP server for the journal.
type Server struct {
	server  *mcp.Server
	journal *journal.Journal
	dataDir string
	policy  *Policy
	log     zerolog.Logger
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// DataDir is the journal directory. If empty, defaults to ~/.sdlcjournal
	DataDir string

	// Passphrase unlocks the journal. If empty, SDLCJOURNAL_PASSPHRASE is used.
	Passphrase string

	// Logger receives diagnostics. Stdout carries the protocol, so it must
	// not write there.
	Logger *zerolog.Logger

	// JournalOptions are passed to journal.Open.
	JournalOptions []journal.Option
}

// NewServer opens and unlocks the journal and registers the tools.
func NewServer(ctx context.Context, opts *ServerOptions) (*Server, error) {
	if opts == nil {
		opts = &ServerOptions{}
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}

	passphrase := opts.Passphrase
	if passphrase == "" {
		passphrase = os.Getenv(PassphraseEnv)
		// Clear the environment variable after reading for security
		os.Unsetenv(PassphraseEnv)
	}
	if passphrase == "" {
		return nil, fmt.Errorf("no passphrase provided: set %s environment variable", PassphraseEnv)
	}

	policy, err := LoadPolicy(dataDir)
	switch {
	case errors.Is(err, ErrPolicyNotFound):
		policy = DefaultPolicy()
	case err != nil:
		log.Warn().Err(err).Msg("failed to load MCP policy, running restricted")
		policy = RestrictedPolicy()
	}

	jopts := append([]journal.Option{
		journal.WithLogger(log),
		journal.WithAuditSource(audit.SourceMCP),
	}, opts.JournalOptions...)
	j, err := journal.Open(ctx, dataDir, jopts...)
	if err != nil {
		return nil, err
	}

	if err := j.Unlock(ctx, passphrase); err != nil {
		j.Close()
		return nil, fmt.Errorf("failed to unlock journal: %w", err)
	}

	return newServer(j, dataDir, policy, log), nil
}

func newServer(j *journal.Journal, dataDir string, policy *Policy, log zerolog.Logger) *Server {
	s := &Server{
		server: mcp.NewServer(
			&mcp.Implementation{
				Name:    "sdlcjournal",
				Version: Version,
			},
			nil,
		),
		journal: j,
		dataDir: dataDir,
		policy:  policy,
		log:     log,
	}
	s.registerTools()
	return s
}

// registerTools registers the tools the policy allows.
func (s *Server) registerTools() {
	if ok, _ := s.policy.IsToolAllowed(ToolPeriods); ok {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        ToolPeriods,
			Description: "List the weeks, months, quarters and years that contain journal entries, newest first. Optionally filter by type (weekly, monthly, quarterly, yearly).",
		}, s.handlePeriods)
	}

	if ok, _ := s.policy.IsToolAllowed(ToolRollup); ok {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        ToolRollup,
			Description: "Get the rollup of one period: entry count, the period's reflection and the reflections of its sub-periods. Entry answers are included only when the policy allows it.",
		}, s.handleRollup)
	}

	if ok, _ := s.policy.IsToolAllowed(ToolSearch); ok {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        ToolSearch,
			Description: "Find entries containing a phrase (case-insensitive). Returns dates and short previews. Requires include_entries in the policy.",
		}, s.handleSearch)
	}

	if ok, _ := s.policy.IsToolAllowed(ToolStats); ok {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        ToolStats,
			Description: "Report the number of entries and reflections and the storage used. Returns no journal text.",
		}, s.handleStats)
	}
}

// Run starts the MCP server using stdio transport.
func (s *Server) Run(ctx context.Context) error {
	defer s.journal.Lock()

	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close locks and closes the journal.
func (s *Server) Close() error {
	return s.journal.Close()
}
