package semver

import "fmt"

// ParseErrorKind classifies why a version string was rejected.
type ParseErrorKind int

const (
	MissingSegment ParseErrorKind = iota + 1
	InvalidState
	InvalidNumber
)

func (k ParseErrorKind) String() string {
	switch k {
	case MissingSegment:
		return "MissingSegment"
	case InvalidState:
		return "InvalidState"
	case InvalidNumber:
		return "InvalidNumber"
	}
	return fmt.Sprintf("ParseErrorKind(%d)", int(k))
}

// ParseError names the offending segment of a rejected version string.
type ParseError struct {
	Input   string
	Kind    ParseErrorKind
	Segment string
	Err     error
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case MissingSegment:
		return fmt.Sprintf("semver: parse version %q: missing %s", e.Input, e.Segment)
	case InvalidState:
		return fmt.Sprintf("semver: parse version %q: invalid state %q", e.Input, e.Segment)
	}
	return fmt.Sprintf("semver: parse version %q: invalid number %q", e.Input, e.Segment)
}

func (e *ParseError) Unwrap() error { return e.Err }
