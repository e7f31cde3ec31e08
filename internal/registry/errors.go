package registry

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("registry: component not found")
	ErrAlreadyRegistered = errors.New("registry: component already registered")
	ErrInvalidComponent  = errors.New("registry: invalid component")
	ErrCorruption        = errors.New("registry: checksum mismatch")
)

// CorruptionError reports a checksum mismatch on a stored or candidate
// component. It matches ErrCorruption with errors.Is.
type CorruptionError struct {
	Name string
	Want Digest
	Got  Digest
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("registry: checksum mismatch for %q: recorded %s, computed %s", e.Name, short(e.Want), short(e.Got))
}

func (e *CorruptionError) Is(target error) bool { return target == ErrCorruption }

func short(d Digest) string { return d.String()[:12] }

func notFound(name string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}
