package registry

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/anvil-platform/semverx/internal/semver"
)

// Digest is the fixed-size integrity digest stored with every component.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether no checksum has been set.
func (d Digest) IsZero() bool { return d == Digest{} }

// Checksum computes the integrity digest of a component payload.
func Checksum(payload []byte) Digest {
	return sha256.Sum256(payload)
}

// Dependency is a requirement declared by a component on another component.
type Dependency struct {
	Target     string
	Constraint string
	// Weight is the path cost of the edge; zero means the default of 1.
	Weight float64
	// Optional dependencies may be absent at resolution time.
	Optional bool
}

// EdgeWeight returns the effective graph weight of the dependency.
func (d Dependency) EdgeWeight() float64 {
	if d.Weight == 0 {
		return 1
	}
	return d.Weight
}

// Component is a named, versioned unit of content.
//
// Values handed out by the Registry are private copies; mutating one never
// affects the component of record.
type Component struct {
	Name         string
	Version      semver.Version
	Checksum     Digest
	Payload      []byte
	Dependencies []Dependency
	// Signature is set by the signing collaborator when a swap commits.
	Signature []byte
}

// ID renders name@version.
func (c Component) ID() string {
	return c.Name + "@" + c.Version.String()
}

// Clone returns a deep copy of c.
func (c Component) Clone() Component {
	out := c
	if c.Payload != nil {
		out.Payload = append([]byte(nil), c.Payload...)
	}
	if c.Dependencies != nil {
		out.Dependencies = append([]Dependency(nil), c.Dependencies...)
	}
	if c.Signature != nil {
		out.Signature = append([]byte(nil), c.Signature...)
	}
	return out
}

// VerifyComponent recomputes the payload digest and compares it to the
// recorded checksum.
func VerifyComponent(c Component) error {
	if Checksum(c.Payload) != c.Checksum {
		return &CorruptionError{Name: c.Name, Want: c.Checksum, Got: Checksum(c.Payload)}
	}
	return nil
}
