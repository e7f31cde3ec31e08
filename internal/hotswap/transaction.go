package hotswap

import (
	"time"

	"github.com/google/uuid"

	"github.com/anvil-platform/semverx/internal/registry"
)

type Phase string

const (
	PhaseValidating Phase = "Validating"
	PhaseBackedUp   Phase = "BackedUp"
	PhaseSwapping   Phase = "Swapping"
	PhaseVerifying  Phase = "Verifying"
	PhaseCommitted  Phase = "Committed"
	PhaseRolledBack Phase = "RolledBack"
	PhaseFailed     Phase = "Failed"
)

// Terminal reports whether no further transition can follow p.
func (p Phase) Terminal() bool {
	return p == PhaseCommitted || p == PhaseRolledBack || p == PhaseFailed
}

// Request describes a candidate replacement for a registered component. The
// candidate keeps the declared dependencies of the component it replaces.
type Request struct {
	Name    string
	Version string
	Payload []byte
	// Checksum is the hex SHA-256 the caller expects the payload to have.
	// Empty skips the comparison.
	Checksum string
	// Signature is checked when the engine has a Signer. Empty asks the
	// engine to sign the candidate itself.
	Signature []byte
}

// Transaction records one swap attempt. A transaction whose Err is set while
// still in PhaseValidating was refused before any mutation.
type Transaction struct {
	ID        uuid.UUID
	Name      string
	Phase     Phase
	History   []Phase
	Snapshot  registry.Component
	Candidate registry.Component
	Err       error

	Started  time.Time
	Finished time.Time
}

func (t *Transaction) enter(p Phase) {
	t.Phase = p
	t.History = append(t.History, p)
}
