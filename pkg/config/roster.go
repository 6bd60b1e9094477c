package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/docket-systems/custodia/pkg/auth"
	"github.com/docket-systems/custodia/pkg/identity"
)

// Roster is the deployment-provided list of known principals: their
// capabilities and identity verification levels. It seeds the identity
// authority and the capability map at boot; principals arriving over
// the API with a valid token are still accepted even when absent here.
type Roster struct {
	Principals []RosterEntry `yaml:"principals"`
}

// RosterEntry describes one principal.
type RosterEntry struct {
	ID           string   `yaml:"id"`
	Capabilities []string `yaml:"capabilities,omitempty"`
	Verification string   `yaml:"verification,omitempty"` // none|basic|professional|judicial
}

// LoadRoster reads and validates a roster YAML file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	for i, e := range r.Principals {
		if e.ID == "" {
			return nil, fmt.Errorf("roster entry %d: id is required", i)
		}
	}
	return &r, nil
}

// Apply registers every roster entry's verification level with the
// identity authority and returns the capability map keyed by principal.
func (r *Roster) Apply(authority *identity.StaticAuthority) map[string][]auth.Capability {
	caps := make(map[string][]auth.Capability, len(r.Principals))
	for _, e := range r.Principals {
		if e.Verification != "" {
			authority.Register(e.ID, identity.ParseLevel(e.Verification))
		}
		for _, c := range e.Capabilities {
			caps[e.ID] = append(caps[e.ID], auth.Capability(c))
		}
	}
	return caps
}
