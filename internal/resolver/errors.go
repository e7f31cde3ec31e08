package resolver

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCyclicDependency  = errors.New("resolver: cyclic dependency")
	ErrVersionConflict   = errors.New("resolver: version conflict")
	ErrInvalidConstraint = errors.New("resolver: invalid constraint")
)

// CyclicDependencyError reports a cycle reachable from the resolution target.
// Resolution never returns a partial order when this occurs.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	path := append(append([]string(nil), e.Cycle...), e.Cycle[0])
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(path, " -> "))
}

func (e *CyclicDependencyError) Is(target error) bool { return target == ErrCyclicDependency }

// VersionConflictError reports a package for which no candidate satisfies
// every requirer's constraint.
type VersionConflictError struct {
	Package   string
	Requirers []string
	// Constraints holds the constraint each requirer declared, index-aligned
	// with Requirers.
	Constraints []string
}

func (e *VersionConflictError) Error() string {
	parts := make([]string, len(e.Requirers))
	for i, r := range e.Requirers {
		c := ""
		if i < len(e.Constraints) {
			c = e.Constraints[i]
		}
		if c == "" {
			c = "*"
		}
		parts[i] = fmt.Sprintf("%s (%s)", r, c)
	}
	return fmt.Sprintf("%s: no version of %q satisfies %s", ErrVersionConflict, e.Package, strings.Join(parts, ", "))
}

func (e *VersionConflictError) Is(target error) bool { return target == ErrVersionConflict }
