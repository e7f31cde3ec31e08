package resolver

import (
	"strings"

	"github.com/anvil-platform/semverx/internal/semver"
)

// Request names the component to resolve and the version it should be
// resolved at. The version need not be the registered one: resolving ahead
// of a swap reports which dependents the new version would break.
type Request struct {
	Name    string
	Version semver.Version
}

func (r Request) key() string {
	return r.Name + "@" + r.Version.String()
}

// Resolved is one entry of a plan.
type Resolved struct {
	Name    string
	Version semver.Version
}

func (r Resolved) String() string {
	return r.Name + "@" + r.Version.String()
}

// Plan is the output of a successful resolution.
type Plan struct {
	// Order lists dependencies before their dependents; the target is last.
	Order       []Resolved
	Diagnostics Diagnostics
}

// IDs renders Order as name@version identifiers.
func (p Plan) IDs() []string {
	out := make([]string, len(p.Order))
	for i, r := range p.Order {
		out[i] = r.String()
	}
	return out
}

func (p Plan) String() string {
	return strings.Join(p.IDs(), " -> ")
}

func (p Plan) clone() Plan {
	return Plan{
		Order: append([]Resolved(nil), p.Order...),
		Diagnostics: Diagnostics{
			UnresolvedOptional: append([]UnresolvedRequirement(nil), p.Diagnostics.UnresolvedOptional...),
		},
	}
}

// Diagnostics captures what resolution skipped without failing.
type Diagnostics struct {
	UnresolvedOptional []UnresolvedRequirement
}

type UnresolvedRequirement struct {
	Requirer   string
	Target     string
	Constraint string
	Reason     string
}
