package registry

import (
	"encoding/hex"
	"fmt"

	"github.com/anvil-platform/semverx/internal/semver"
)

// Record is the plain-data form of a Component handed to persistence
// collaborators.
type Record struct {
	Name         string             `json:"name" yaml:"name"`
	Version      string             `json:"version" yaml:"version"`
	Checksum     string             `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Payload      []byte             `json:"payload,omitempty" yaml:"payload,omitempty"`
	Dependencies []DependencyRecord `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Signature    []byte             `json:"signature,omitempty" yaml:"signature,omitempty"`
}

type DependencyRecord struct {
	Target     string  `json:"target" yaml:"target"`
	Constraint string  `json:"constraint,omitempty" yaml:"constraint,omitempty"`
	Weight     float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
	Optional   bool    `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// ToRecord converts c to its plain-data form.
func ToRecord(c Component) Record {
	rec := Record{
		Name:      c.Name,
		Version:   c.Version.String(),
		Checksum:  c.Checksum.String(),
		Payload:   append([]byte(nil), c.Payload...),
		Signature: append([]byte(nil), c.Signature...),
	}
	for _, d := range c.Dependencies {
		rec.Dependencies = append(rec.Dependencies, DependencyRecord(d))
	}
	return rec
}

// FromRecord rebuilds a Component. An empty checksum is computed from the
// payload; a recorded one is kept as is so that corruption at rest is caught
// by verification.
func FromRecord(rec Record) (Component, error) {
	v, err := semver.Parse(rec.Version)
	if err != nil {
		return Component{}, fmt.Errorf("registry: record %q: %w", rec.Name, err)
	}
	c := Component{
		Name:      rec.Name,
		Version:   v,
		Payload:   append([]byte(nil), rec.Payload...),
		Signature: append([]byte(nil), rec.Signature...),
	}
	for _, d := range rec.Dependencies {
		c.Dependencies = append(c.Dependencies, Dependency(d))
	}
	if rec.Checksum == "" {
		c.Checksum = Checksum(c.Payload)
		return c, nil
	}
	raw, err := hex.DecodeString(rec.Checksum)
	if err != nil || len(raw) != len(c.Checksum) {
		return Component{}, fmt.Errorf("%w: record %q has malformed checksum", ErrInvalidComponent, rec.Name)
	}
	copy(c.Checksum[:], raw)
	return c, nil
}

// Export returns plain-data records for every component in registration order.
func (r *Registry) Export() []Record {
	snap := r.Snapshot()
	out := make([]Record, 0, len(snap))
	for _, c := range snap {
		out = append(out, ToRecord(c))
	}
	return out
}
