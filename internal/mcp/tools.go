package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/peoplesafe/sdlcjournal/pkg/period"
	"github.com/peoplesafe/sdlcjournal/pkg/rollup"
)

// Tool names.
const (
	ToolPeriods = "journal_periods"
	ToolRollup  = "journal_rollup"
	ToolSearch  = "journal_search"
	ToolStats   = "journal_stats"
)

// Limits on search results.
const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	maxQueryLength     = 256
)

// ToolNames returns every tool the server knows.
func ToolNames() []string {
	return []string{ToolPeriods, ToolRollup, ToolSearch, ToolStats}
}

// PeriodsInput represents input for journal_periods tool.
type PeriodsInput struct {
	Type string `json:"type,omitempty"`
}

// PeriodsOutput represents output for journal_periods tool.
type PeriodsOutput struct {
	Weeks    []string `json:"weeks,omitempty"`
	Months   []string `json:"months,omitempty"`
	Quarters []string `json:"quarters,omitempty"`
	Years    []string `json:"years,omitempty"`
}

// RollupInput represents input for journal_rollup tool.
type RollupInput struct {
	Type   string `json:"type"`
	Period string `json:"period"`
}

// RollupOutput represents output for journal_rollup tool.
type RollupOutput struct {
	Type           string          `json:"type"`
	Period         string          `json:"period"`
	Label          string          `json:"label"`
	EntryCount     int             `json:"entry_count"`
	Reflection     string          `json:"reflection,omitempty"`
	SubReflections []SubReflection `json:"sub_reflections,omitempty"`
	Items          *RollupItems    `json:"items,omitempty"`
	EntriesHidden  bool            `json:"entries_hidden"`
	Skipped        int             `json:"skipped,omitempty"`
}

// RollupItems holds entry answers grouped by prompt.
type RollupItems struct {
	Success    []Item `json:"success"`
	Delight    []Item `json:"delight"`
	Learning   []Item `json:"learning"`
	Compliment []Item `json:"compliment"`
}

// Item is one entry answer.
type Item struct {
	Date string `json:"date"`
	Text string `json:"text"`
}

// SubReflection is the reflection of a contained period.
type SubReflection struct {
	Period     string `json:"period"`
	Label      string `json:"label"`
	Reflection string `json:"reflection"`
}

// SearchInput represents input for journal_search tool.
type SearchInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchOutput represents output for journal_search tool.
type SearchOutput struct {
	Results   []SearchResult `json:"results"`
	Truncated bool           `json:"truncated"`
}

// SearchResult is one matching entry.
type SearchResult struct {
	Date    string `json:"date"`
	Label   string `json:"label"`
	Preview string `json:"preview"`
}

// StatsInput represents input for journal_stats tool.
type StatsInput struct{}

// StatsOutput represents output for journal_stats tool.
type StatsOutput struct {
	Entries       int    `json:"entries"`
	Rollups       int    `json:"rollups"`
	DatabaseBytes int64  `json:"database_bytes"`
	DiskFreeBytes uint64 `json:"disk_free_bytes,omitempty"`
	DiskUsedPct   int    `json:"disk_used_percent,omitempty"`
	DiskLow       bool   `json:"disk_low"`
}

func (s *Server) checkTool(tool string) error {
	if ok, reason := s.policy.IsToolAllowed(tool); !ok {
		return fmt.Errorf("%w: %s", ErrToolDenied, reason)
	}
	return nil
}

// handlePeriods handles the journal_periods tool call.
func (s *Server) handlePeriods(ctx context.Context, _ *mcp.CallToolRequest, input PeriodsInput) (*mcp.CallToolResult, PeriodsOutput, error) {
	if err := s.checkTool(ToolPeriods); err != nil {
		return nil, PeriodsOutput{}, err
	}

	p, err := s.journal.AvailablePeriods(ctx)
	if err != nil {
		return nil, PeriodsOutput{}, fmt.Errorf("failed to list periods: %w", err)
	}

	if input.Type == "" {
		return nil, PeriodsOutput{Weeks: p.Weeks, Months: p.Months, Quarters: p.Quarters, Years: p.Years}, nil
	}

	t, err := period.ParseType(input.Type)
	if err != nil {
		return nil, PeriodsOutput{}, err
	}
	var out PeriodsOutput
	switch t {
	case period.Weekly:
		out.Weeks = p.Weeks
	case period.Monthly:
		out.Months = p.Months
	case period.Quarterly:
		out.Quarters = p.Quarters
	case period.Yearly:
		out.Years = p.Years
	}
	return nil, out, nil
}

// handleRollup handles the journal_rollup tool call.
func (s *Server) handleRollup(ctx context.Context, _ *mcp.CallToolRequest, input RollupInput) (*mcp.CallToolResult, RollupOutput, error) {
	if err := s.checkTool(ToolRollup); err != nil {
		return nil, RollupOutput{}, err
	}
	if input.Type == "" || input.Period == "" {
		return nil, RollupOutput{}, errors.New("type and period are required")
	}

	t, err := period.ParseType(input.Type)
	if err != nil {
		return nil, RollupOutput{}, err
	}

	view, err := s.journal.Rollup(ctx, t, input.Period)
	if err != nil {
		return nil, RollupOutput{}, fmt.Errorf("failed to build rollup: %w", err)
	}

	out := RollupOutput{
		Type:          t.String(),
		Period:        view.PeriodKey,
		Label:         view.Label,
		EntryCount:    view.EntryCount,
		Reflection:    view.Reflection,
		EntriesHidden: !s.policy.IncludeEntries,
		Skipped:       view.Skipped,
	}
	for _, sub := range view.SubReflections {
		out.SubReflections = append(out.SubReflections, SubReflection{
			Period:     sub.PeriodKey,
			Label:      sub.Label,
			Reflection: sub.Reflection,
		})
	}
	if s.policy.IncludeEntries {
		out.Items = &RollupItems{
			Success:    toItems(view.Success),
			Delight:    toItems(view.Delight),
			Learning:   toItems(view.Learning),
			Compliment: toItems(view.Compliment),
		}
	}
	return nil, out, nil
}

func toItems(items []rollup.Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, Item{Date: it.Date, Text: it.Text})
	}
	return out
}

// handleSearch handles the journal_search tool call.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if err := s.checkTool(ToolSearch); err != nil {
		return nil, SearchOutput{}, err
	}
	if !s.policy.IncludeEntries {
		return nil, SearchOutput{}, fmt.Errorf("%w: search requires include_entries", ErrToolDenied)
	}

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, SearchOutput{}, errors.New("query is required")
	}
	if len(query) > maxQueryLength {
		return nil, SearchOutput{}, fmt.Errorf("query too long (max %d)", maxQueryLength)
	}

	limit := input.Limit
	switch {
	case limit <= 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}

	results, err := s.journal.Search(ctx, query)
	if err != nil {
		return nil, SearchOutput{}, fmt.Errorf("failed to search: %w", err)
	}

	out := SearchOutput{Results: make([]SearchResult, 0, min(len(results), limit))}
	for i, r := range results {
		if i == limit {
			out.Truncated = true
			break
		}
		out.Results = append(out.Results, SearchResult{Date: r.Date, Label: r.Label, Preview: r.Preview})
	}
	return nil, out, nil
}

// handleStats handles the journal_stats tool call.
func (s *Server) handleStats(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, StatsOutput, error) {
	if err := s.checkTool(ToolStats); err != nil {
		return nil, StatsOutput{}, err
	}

	st, err := s.journal.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, fmt.Errorf("failed to read stats: %w", err)
	}

	out := StatsOutput{
		Entries:       st.Entries,
		Rollups:       st.Rollups,
		DatabaseBytes: st.DatabaseBytes,
		DiskLow:       st.DiskLow,
	}
	if st.Disk != nil {
		out.DiskFreeBytes = st.Disk.Available
		out.DiskUsedPct = st.Disk.UsedPct
	}
	return nil, out, nil
}
