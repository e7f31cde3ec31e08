package transport

import "github.com/anvil-platform/semverx/internal/registry"

// Error carries a failure in the response body. Code names the error class;
// callers branch on it rather than on Message.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	// Package and Requirers are set for VERSION_CONFLICT, Cycle for
	// CYCLIC_DEPENDENCY.
	Package   string   `json:"package,omitempty"`
	Requirers []string `json:"requirers,omitempty"`
	Cycle     []string `json:"cycle,omitempty"`
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

type Code string

const (
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeParseError       Code = "PARSE_ERROR"
	CodeNotFound         Code = "NOT_FOUND"
	CodeCyclicDependency Code = "CYCLIC_DEPENDENCY"
	CodeVersionConflict  Code = "VERSION_CONFLICT"
	CodeCorruption       Code = "CORRUPTION"
	CodeSwapRejected     Code = "SWAP_REJECTED"
	CodeSwapInProgress   Code = "SWAP_IN_PROGRESS"
	CodeRolledBack       Code = "ROLLED_BACK"
	CodeFatal            Code = "FATAL"
	CodeInternal         Code = "INTERNAL"
)

type ResolveRequest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ResolveResponse struct {
	// Order lists name@version identifiers, dependencies first.
	Order              []string `json:"order,omitempty"`
	UnresolvedOptional []string `json:"unresolvedOptional,omitempty"`
	Error              *Error   `json:"error,omitempty"`
}

type SwapRequest struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Payload   []byte `json:"payload,omitempty"`
	Checksum  string `json:"checksum,omitempty"`
	Signature []byte `json:"signature,omitempty"`
}

type SwapResponse struct {
	TransactionID string   `json:"transactionId"`
	Phase         string   `json:"phase"`
	History       []string `json:"history,omitempty"`
	Error         *Error   `json:"error,omitempty"`
}

type GetRequest struct {
	Name string `json:"name"`
}

type GetResponse struct {
	Component *registry.Record `json:"component,omitempty"`
	Error     *Error           `json:"error,omitempty"`
}

type CanSwapRequest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type CanSwapResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Error   *Error `json:"error,omitempty"`
}
