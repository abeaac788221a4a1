package mcp

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Policy controls which tools an assistant may call and how much plaintext
// they return. It is read from <data_dir>/mcp-policy.yaml.
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	DeniedTools   []string `yaml:"denied_tools"`
	AllowedTools  []string `yaml:"allowed_tools"`
	// IncludeEntries allows rollup and search results to carry entry text.
	// Reflections are always included.
	IncludeEntries bool `yaml:"include_entries"`
}

// PolicyFileName is the name of the policy file
const PolicyFileName = "mcp-policy.yaml"

// Policy action constants
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// ErrPolicyNotFound is returned when no policy file exists
var ErrPolicyNotFound = errors.New("MCP policy file not found")

// ErrPolicyInsecure is returned when policy file has insecure permissions
var ErrPolicyInsecure = errors.New("MCP policy file has insecure permissions")

// ErrPolicySymlink is returned when policy file is a symlink
var ErrPolicySymlink = errors.New("MCP policy file is a symlink")

// ErrPolicyNotOwnedByUser is returned when policy file is not owned by current user
var ErrPolicyNotOwnedByUser = errors.New("MCP policy file not owned by current user")

// ErrToolDenied is returned when the policy forbids a tool call.
var ErrToolDenied = errors.New("tool denied by MCP policy")

// DefaultPolicy applies when no policy file exists: every tool is allowed,
// entry text is withheld.
func DefaultPolicy() *Policy {
	return &Policy{Version: 1, DefaultAction: ActionAllow}
}

// RestrictedPolicy applies when a policy file exists but cannot be trusted
// or parsed: only tools that expose no journal text are allowed.
func RestrictedPolicy() *Policy {
	return &Policy{
		Version:       1,
		DefaultAction: ActionDeny,
		AllowedTools:  []string{ToolPeriods, ToolStats},
	}
}

// LoadPolicy loads the MCP policy from the data directory without following
// symlinks, and rejects files that are not 0600 or not owned by the user.
func LoadPolicy(dataDir string) (*Policy, error) {
	f, err := openPolicyFile(filepath.Join(dataDir, PolicyFileName))
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) || errors.Is(err, ErrPolicySymlink) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open policy file: %w", err)
	}
	defer f.Close()

	// fstat on the open descriptor, not the path.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}

	if perm := info.Mode().Perm(); perm != 0600 {
		return nil, fmt.Errorf("%w: %o (expected 0600)", ErrPolicyInsecure, perm)
	}
	if err := checkFileOwnership(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}
	if err := policy.ValidatePolicy(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// IsToolAllowed checks if a tool may be called.
// Evaluation order: denied_tools, allowed_tools, default_action.
func (p *Policy) IsToolAllowed(tool string) (allowed bool, reason string) {
	for _, denied := range p.DeniedTools {
		if denied == tool {
			return false, fmt.Sprintf("tool '%s' is in denied_tools", tool)
		}
	}

	for _, a := range p.AllowedTools {
		if a == tool {
			return true, ""
		}
	}

	if p.DefaultAction == ActionAllow {
		return true, ""
	}
	return false, fmt.Sprintf("tool '%s' not in allowed_tools list", tool)
}

// ValidatePolicy validates the policy configuration
func (p *Policy) ValidatePolicy() error {
	if p.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d", p.Version)
	}

	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("invalid default_action: %s (must be '%s' or '%s')", p.DefaultAction, ActionDeny, ActionAllow)
	}

	known := make(map[string]bool, len(ToolNames()))
	for _, name := range ToolNames() {
		known[name] = true
	}
	for _, name := range append(append([]string{}, p.AllowedTools...), p.DeniedTools...) {
		if !known[name] {
			return fmt.Errorf("unknown tool in policy: %s", name)
		}
	}
	return nil
}

// AllowedToolNames returns the tools the policy permits, sorted.
func (p *Policy) AllowedToolNames() []string {
	var names []string
	for _, name := range ToolNames() {
		if ok, _ := p.IsToolAllowed(name); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
