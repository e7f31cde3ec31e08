package semver

import (
	"fmt"
	"regexp"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// Constraint is a semantic version constraint.
//
// This is a thin wrapper around github.com/Masterminds/semver/v3. Operands may
// be written either as plain semantic versions or in SemVerX form; lifecycle
// tags are dropped before evaluation.
//
// Examples:
// - ">=1.2.0 <2.0.0"
// - "^1.stable.0.stable.0.stable"
// - "~1.4"
type Constraint struct {
	raw string
	c   *mm.Constraints
}

var reSemverX = regexp.MustCompile(`(\d+)\.(?:stable|experimental|legacy)\.(\d+)\.(?:stable|experimental|legacy)\.(\d+)\.(?:stable|experimental|legacy)`)

func ParseConstraint(raw string) (Constraint, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		text = "*"
	}
	c, err := mm.NewConstraint(reSemverX.ReplaceAllString(text, "$1.$2.$3"))
	if err != nil {
		return Constraint{}, fmt.Errorf("semver: parse constraint %q: %w", raw, err)
	}
	return Constraint{raw: text, c: c}, nil
}

func MustParseConstraint(raw string) Constraint {
	c, err := ParseConstraint(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Constraint) String() string { return c.raw }

func Satisfies(v Version, c Constraint) bool {
	if c.c == nil {
		return false
	}
	mv, err := mm.NewVersion(v.Core())
	if err != nil {
		// Prerelease strings outside the semver identifier charset cannot be
		// evaluated against a range.
		return false
	}
	return c.c.Check(mv)
}

// SatisfiesAll reports whether v satisfies every constraint in cs.
func SatisfiesAll(v Version, cs []Constraint) bool {
	for _, c := range cs {
		if !Satisfies(v, c) {
			return false
		}
	}
	return true
}

// MaxSatisfying returns the highest version in candidates that satisfies
// every constraint in cs.
//
// If multiple versions are equal, the first encountered wins.
func MaxSatisfying(cs []Constraint, candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, candidate := range candidates {
		if !SatisfiesAll(candidate, cs) {
			continue
		}
		if !found || Compare(candidate, best) > 0 {
			best = candidate
			found = true
		}
	}
	return best, found
}
