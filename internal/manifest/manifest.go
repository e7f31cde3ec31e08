// Package manifest reads component catalogs from YAML documents.
//
//	components:
//	  - name: db
//	    version: 1.stable.0.stable.0.stable
//	    payload: "schema v1"
//	  - name: auth
//	    version: 1.stable.2.stable.0.stable
//	    payload: "auth v1.2"
//	    dependencies:
//	      - target: db
//	        constraint: ^1.0.0
//
// Payloads are plain strings. A checksum, when present, is the hex SHA-256
// the payload is expected to hash to.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/anvil-platform/semverx/internal/registry"
)

type Manifest struct {
	Components []Component `yaml:"components"`
}

type Component struct {
	Name         string       `yaml:"name"`
	Version      string       `yaml:"version"`
	Payload      string       `yaml:"payload,omitempty"`
	Checksum     string       `yaml:"checksum,omitempty"`
	Dependencies []Dependency `yaml:"dependencies,omitempty"`
}

type Dependency struct {
	Target     string  `yaml:"target"`
	Constraint string  `yaml:"constraint,omitempty"`
	Weight     float64 `yaml:"weight,omitempty"`
	Optional   bool    `yaml:"optional,omitempty"`
}

// Decode reads one manifest. Unknown fields are rejected.
func Decode(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return &m, nil
		}
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	for i, c := range m.Components {
		if c.Name == "" {
			return nil, fmt.Errorf("manifest: component %d: name is required", i)
		}
		if c.Version == "" {
			return nil, fmt.Errorf("manifest: component %q: version is required", c.Name)
		}
	}
	return &m, nil
}

func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return Decode(bytes.NewReader(raw))
}

// Records converts the manifest to plain-data registry records. Records
// without a checksum get one computed when they are restored.
func (m *Manifest) Records() []registry.Record {
	out := make([]registry.Record, 0, len(m.Components))
	for _, c := range m.Components {
		rec := registry.Record{
			Name:     c.Name,
			Version:  c.Version,
			Checksum: c.Checksum,
			Payload:  []byte(c.Payload),
		}
		for _, d := range c.Dependencies {
			rec.Dependencies = append(rec.Dependencies, registry.DependencyRecord(d))
		}
		out = append(out, rec)
	}
	return out
}

// FromRecords builds a manifest from records, e.g. a catalog export.
func FromRecords(records []registry.Record) *Manifest {
	m := &Manifest{Components: make([]Component, 0, len(records))}
	for _, rec := range records {
		c := Component{
			Name:     rec.Name,
			Version:  rec.Version,
			Payload:  string(rec.Payload),
			Checksum: rec.Checksum,
		}
		for _, d := range rec.Dependencies {
			c.Dependencies = append(c.Dependencies, Dependency(d))
		}
		m.Components = append(m.Components, c)
	}
	return m
}

// Encode writes m as YAML.
func (m *Manifest) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}
	return enc.Close()
}
