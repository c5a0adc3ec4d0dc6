// Package registry is the small, fixed catalog of in-container agent CLIs
// the hub knows how to launch (§3 "agent type"). Grounded on kandev's
// internal/agent/registry, trimmed from its pluggable custom-TUI config
// catalog down to the fixed set SPEC_FULL.md names.
package registry

import "fmt"

// Config describes one agent type's launch contract: the flag the hub
// passes to agent_cli to select it, whether it can use the account-bound
// OAuth login instead of an API key, and the required credential kind.
type Config struct {
	Type              string
	DisplayName       string
	LauncherFlag      string
	SupportsAccount   bool
	RequiresOpenAIKey bool
}

// Registry is a read-only lookup of agent Config by type name.
type Registry struct {
	byType map[string]Config
	order  []string
}

// New returns a Registry seeded with the hub's fixed agent catalog.
func New() *Registry {
	r := &Registry{byType: make(map[string]Config)}
	for _, c := range defaults() {
		r.byType[c.Type] = c
		r.order = append(r.order, c.Type)
	}
	return r
}

func defaults() []Config {
	return []Config{
		{Type: "codex", DisplayName: "Codex", LauncherFlag: "--agent-type=codex", SupportsAccount: true, RequiresOpenAIKey: true},
		{Type: "claude", DisplayName: "Claude", LauncherFlag: "--agent-type=claude", SupportsAccount: false, RequiresOpenAIKey: false},
		{Type: "gemini", DisplayName: "Gemini", LauncherFlag: "--agent-type=gemini", SupportsAccount: false, RequiresOpenAIKey: false},
		{Type: "none", DisplayName: "None (shell only)", LauncherFlag: "--agent-type=none", SupportsAccount: false, RequiresOpenAIKey: false},
	}
}

// Get looks up a Config by type name.
func (r *Registry) Get(agentType string) (Config, bool) {
	c, ok := r.byType[agentType]
	return c, ok
}

// Types returns every registered agent type name, in catalog order.
func (r *Registry) Types() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Validate returns an error if agentType is not in the catalog.
func (r *Registry) Validate(agentType string) error {
	if _, ok := r.byType[agentType]; !ok {
		return fmt.Errorf("unknown agent type %q", agentType)
	}
	return nil
}
