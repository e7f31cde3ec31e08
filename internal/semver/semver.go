package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// Lifecycle is the state tag carried by each numeric segment of a Version.
type Lifecycle uint8

const (
	Stable Lifecycle = iota
	Experimental
	Legacy
)

var lifecycleNames = [...]string{
	Stable:       "stable",
	Experimental: "experimental",
	Legacy:       "legacy",
}

// Lifecycles lists every lifecycle state in declaration order.
var Lifecycles = []Lifecycle{Stable, Experimental, Legacy}

func (l Lifecycle) String() string {
	if int(l) < len(lifecycleNames) {
		return lifecycleNames[l]
	}
	return fmt.Sprintf("Lifecycle(%d)", uint8(l))
}

// ParseLifecycle matches the exact lowercase state token.
func ParseLifecycle(raw string) (Lifecycle, bool) {
	for i, name := range lifecycleNames {
		if raw == name {
			return Lifecycle(i), true
		}
	}
	return 0, false
}

// Version is an extended (SemVerX) version: each of major, minor and patch
// carries its own lifecycle state.
//
// Version is a value type; it is never mutated after construction.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64

	StateMajor Lifecycle
	StateMinor Lifecycle
	StatePatch Lifecycle

	Prerelease string
	Build      string
}

// New returns an all-stable version without prerelease or build metadata.
func New(major, minor, patch uint64) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// Parse parses MAJOR.state.MINOR.state.PATCH.state[-prerelease][+build].
func Parse(raw string) (Version, error) {
	text := raw
	var v Version

	if i := strings.IndexByte(text, '+'); i >= 0 {
		v.Build = text[i+1:]
		text = text[:i]
		if v.Build == "" {
			return Version{}, &ParseError{Input: raw, Kind: MissingSegment, Segment: "build"}
		}
	}
	// The prerelease separator is the first '-' after the patch state token,
	// so look for it only past the last numeric segment.
	segments := strings.SplitN(text, ".", 6)
	if len(segments) == 6 {
		if i := strings.IndexByte(segments[5], '-'); i >= 0 {
			v.Prerelease = segments[5][i+1:]
			segments[5] = segments[5][:i]
			if v.Prerelease == "" {
				return Version{}, &ParseError{Input: raw, Kind: MissingSegment, Segment: "prerelease"}
			}
		}
	}

	names := [...]string{"major", "major state", "minor", "minor state", "patch", "patch state"}
	segment := func(i int) string {
		if i < len(segments) {
			return segments[i]
		}
		return ""
	}

	numbers := [3]*uint64{&v.Major, &v.Minor, &v.Patch}
	states := [3]*Lifecycle{&v.StateMajor, &v.StateMinor, &v.StatePatch}
	for i := 0; i < 3; i++ {
		num, state := segment(2*i), segment(2*i+1)
		if num == "" {
			return Version{}, &ParseError{Input: raw, Kind: MissingSegment, Segment: names[2*i]}
		}
		n, err := parseNumber(num)
		if err != nil {
			return Version{}, &ParseError{Input: raw, Kind: InvalidNumber, Segment: num, Err: err}
		}
		*numbers[i] = n

		if state == "" {
			return Version{}, &ParseError{Input: raw, Kind: MissingSegment, Segment: names[2*i+1]}
		}
		l, ok := ParseLifecycle(state)
		if !ok {
			return Version{}, &ParseError{Input: raw, Kind: InvalidState, Segment: state}
		}
		*states[i] = l
	}
	return v, nil
}

func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// parseNumber accepts unsigned base-10 digits only; strconv alone would let
// a leading '+' through.
func parseNumber(s string) (uint64, error) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-digit %q", r)
		}
	}
	return strconv.ParseUint(s, 10, 64)
}

// String renders the canonical form accepted by Parse.
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%s.%d.%s.%d.%s", v.Major, v.StateMajor, v.Minor, v.StateMinor, v.Patch, v.StatePatch)
	if v.Prerelease != "" {
		b.WriteByte('-')
		b.WriteString(v.Prerelease)
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}

// Core renders the plain semantic version (no lifecycle tags, no build).
func (v Version) Core() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// WithBuild returns a copy of v carrying the given build metadata.
func (v Version) WithBuild(build string) Version {
	v.Build = build
	return v
}

// Equal reports whether a and b are identical, build metadata included.
func (v Version) Equal(o Version) bool {
	return v == o
}

// Compare compares a and b, returning:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
//
// Lifecycle states and build metadata do not participate. Two prerelease
// strings are compared lexically, not by dotted identifiers.
func Compare(a, b Version) int {
	if c := cmpUint(a.Major, b.Major); c != 0 {
		return c
	}
	if c := cmpUint(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := cmpUint(a.Patch, b.Patch); c != 0 {
		return c
	}
	switch {
	case a.Prerelease == "" && b.Prerelease == "":
		return 0
	case a.Prerelease == "":
		return 1
	case b.Prerelease == "":
		return -1
	}
	return strings.Compare(a.Prerelease, b.Prerelease)
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
