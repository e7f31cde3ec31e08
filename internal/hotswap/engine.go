// Package hotswap replaces live components through a validated, reversible
// transaction:
//
//	Validating -> BackedUp -> Swapping -> Verifying -> Committed
//
// A failure after the registry was mutated restores the backup (RolledBack).
// If the restored component does not verify either, the transaction ends in
// Failed and the engine reports itself unhealthy.
package hotswap

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/anvil-platform/semverx/internal/events"
	"github.com/anvil-platform/semverx/internal/registry"
	"github.com/anvil-platform/semverx/internal/semver"
)

// Store is the component state a transaction runs against. Replace must be
// linearizable. *registry.Registry and *catalog.Catalog satisfy it; the
// catalog also keeps its readers off a half-applied swap.
type Store interface {
	Get(name string) (registry.Component, error)
	Replace(name string, next registry.Component) (registry.Component, error)
}

type Engine struct {
	reg    Store
	signer Signer
	sink   events.Sink
	log    logr.Logger

	mu       sync.Mutex
	inflight map[string]uuid.UUID

	fatal atomic.Bool

	// verify checks a component that is live in the registry.
	verify func(registry.Component) error
	now    func() time.Time
}

type Option func(*Engine)

func WithSigner(s Signer) Option { return func(e *Engine) { e.signer = s } }

func WithSink(s events.Sink) Option { return func(e *Engine) { e.sink = s } }

func WithLogger(l logr.Logger) Option { return func(e *Engine) { e.log = l } }

func New(reg Store, opts ...Option) *Engine {
	e := &Engine{
		reg:      reg,
		sink:     events.Discard,
		log:      logr.Discard(),
		inflight: make(map[string]uuid.UUID),
		verify:   registry.VerifyComponent,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Healthy is false once any transaction has ended in Failed.
func (e *Engine) Healthy() bool { return !e.fatal.Load() }

// CanSwap reports whether the registered component name could be swapped to
// version, without touching the registry.
func (e *Engine) CanSwap(name, version string) (bool, string, error) {
	current, err := e.reg.Get(name)
	if err != nil {
		return false, "", err
	}
	target, err := semver.Parse(version)
	if err != nil {
		return false, "", err
	}
	ok, reason := semver.SwapDecision(current.Version, target)
	return ok, reason, nil
}

// Exclusive runs fn while holding the transaction slot of name, so fn never
// overlaps a swap of the same component. If a swap is running it returns a
// *RejectedError matching ErrSwapInProgress without calling fn.
func (e *Engine) Exclusive(name string, fn func() error) error {
	if !e.acquire(name, uuid.Nil) {
		return &RejectedError{Name: name, InProgress: true}
	}
	defer e.release(name)
	return fn()
}

// Swap runs one transaction for req. The returned transaction is never nil;
// its Phase and History describe how far it got.
//
// Errors before Swapping leave the registry untouched. After a rollback the
// error is a *RolledBackError; after a failed rollback it wraps ErrFatal.
func (e *Engine) Swap(ctx context.Context, req Request) (*Transaction, error) {
	tx := &Transaction{ID: uuid.New(), Name: req.Name, Started: e.now()}
	tx.enter(PhaseValidating)
	log, err := logr.FromContext(ctx)
	if err != nil {
		log = e.log
	}
	log = log.WithValues("component", req.Name, "transaction", tx.ID.String())

	if err := ctx.Err(); err != nil {
		return e.abort(tx, log, err)
	}
	if !e.acquire(req.Name, tx.ID) {
		return e.abort(tx, log, &RejectedError{Name: req.Name, InProgress: true})
	}
	defer e.release(req.Name)

	current, candidate, err := e.validate(req)
	if err != nil {
		return e.abort(tx, log, err)
	}
	tx.Candidate = candidate
	e.emit(tx, nil, current.Version.String()+" -> "+candidate.Version.String())

	// current is already a private copy; it stays unaliased for the life of
	// the transaction.
	tx.Snapshot = current
	e.transition(tx, PhaseBackedUp, nil, current.ID())

	e.transition(tx, PhaseSwapping, nil, "")
	if _, err := e.reg.Replace(req.Name, candidate); err != nil {
		// Replace failed without mutating; there is nothing to restore.
		tx.Err = &RolledBackError{Name: req.Name, Phase: PhaseSwapping, Cause: err}
		e.transition(tx, PhaseRolledBack, tx.Err, "")
		return e.finish(tx, log)
	}

	e.transition(tx, PhaseVerifying, nil, "")
	if err := e.verifyLive(candidate); err != nil {
		return e.rollback(tx, log, PhaseVerifying, err)
	}

	e.transition(tx, PhaseCommitted, nil, candidate.ID())
	return e.finish(tx, log)
}

func (e *Engine) validate(req Request) (registry.Component, registry.Component, error) {
	current, err := e.reg.Get(req.Name)
	if err != nil {
		return registry.Component{}, registry.Component{}, err
	}
	// The live component becomes the backup; a corrupt one could not be
	// restored.
	if err := registry.VerifyComponent(current); err != nil {
		return registry.Component{}, registry.Component{}, err
	}
	target, err := semver.Parse(req.Version)
	if err != nil {
		return registry.Component{}, registry.Component{}, err
	}
	if ok, reason := semver.SwapDecision(current.Version, target); !ok {
		return registry.Component{}, registry.Component{}, &RejectedError{
			Name:   req.Name,
			From:   current.Version.String(),
			To:     target.String(),
			Reason: reason,
		}
	}

	candidate := registry.Component{
		Name:         req.Name,
		Version:      target,
		Payload:      append([]byte(nil), req.Payload...),
		Checksum:     registry.Checksum(req.Payload),
		Dependencies: current.Dependencies,
		Signature:    append([]byte(nil), req.Signature...),
	}

	if req.Checksum != "" {
		want, err := parseDigest(req.Checksum)
		if err != nil {
			return registry.Component{}, registry.Component{}, err
		}
		if want != candidate.Checksum {
			return registry.Component{}, registry.Component{}, &registry.CorruptionError{Name: req.Name, Want: want, Got: candidate.Checksum}
		}
	}

	if e.signer != nil {
		if len(candidate.Signature) > 0 {
			if !e.signer.Verify(candidate.Payload, candidate.Signature) {
				return registry.Component{}, registry.Component{}, fmt.Errorf("%w: %q", ErrBadSignature, req.Name)
			}
		} else {
			sig, err := e.signer.Sign(candidate.Payload)
			if err != nil {
				return registry.Component{}, registry.Component{}, fmt.Errorf("hotswap: sign %q: %w", req.Name, err)
			}
			candidate.Signature = sig
		}
	}
	return current, candidate, nil
}

// verifyLive checks that the registry now holds want and that it verifies.
func (e *Engine) verifyLive(want registry.Component) error {
	live, err := e.reg.Get(want.Name)
	if err != nil {
		return err
	}
	if live.Checksum != want.Checksum {
		return &registry.CorruptionError{Name: want.Name, Want: want.Checksum, Got: live.Checksum}
	}
	return e.verify(live)
}

func (e *Engine) rollback(tx *Transaction, log logr.Logger, at Phase, cause error) (*Transaction, error) {
	log.Info("rolling back", "phase", string(at), "error", cause.Error())

	_, err := e.reg.Replace(tx.Name, tx.Snapshot)
	if err == nil {
		err = e.verifyLive(tx.Snapshot)
	}
	if err != nil {
		e.fatal.Store(true)
		tx.Err = fmt.Errorf("%w: %q: restore after %v: %w", ErrFatal, tx.Name, cause, err)
		e.transition(tx, PhaseFailed, tx.Err, "")
		return e.finish(tx, log)
	}

	tx.Err = &RolledBackError{Name: tx.Name, Phase: at, Cause: cause}
	e.transition(tx, PhaseRolledBack, tx.Err, tx.Snapshot.ID())
	return e.finish(tx, log)
}

// abort ends a transaction that never left Validating.
func (e *Engine) abort(tx *Transaction, log logr.Logger, err error) (*Transaction, error) {
	tx.Err = err
	tx.Finished = e.now()
	log.Info("swap refused", "error", err.Error())
	e.emit(tx, err, "")
	return tx, err
}

func (e *Engine) finish(tx *Transaction, log logr.Logger) (*Transaction, error) {
	tx.Finished = e.now()
	if tx.Err != nil {
		log.Info("swap finished", "phase", string(tx.Phase), "error", tx.Err.Error())
		return tx, tx.Err
	}
	log.Info("swap committed", "version", tx.Candidate.Version.String(), "duration", tx.Finished.Sub(tx.Started))
	return tx, nil
}

func (e *Engine) transition(tx *Transaction, p Phase, err error, detail string) {
	tx.enter(p)
	e.emit(tx, err, detail)
}

// emit reports the transaction's current phase.
func (e *Engine) emit(tx *Transaction, err error, detail string) {
	ev := events.Event{
		Time:      e.now(),
		Kind:      events.KindSwapPhase,
		Component: tx.Name,
		Phase:     string(tx.Phase),
		Detail:    detail,
		Fatal:     tx.Phase == PhaseFailed,
	}
	if err != nil {
		ev.Error = err.Error()
		ev.Reason = errorReason(err)
	}
	e.sink.Emit(ev)
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrFatal):
		return "Fatal"
	case errors.Is(err, ErrSwapInProgress):
		return "SwapInProgress"
	case errors.Is(err, ErrSwapRejected):
		return "SwapRejected"
	case errors.Is(err, ErrRolledBack), errors.Is(err, registry.ErrCorruption), errors.Is(err, ErrBadSignature):
		return "Corruption"
	case errors.Is(err, registry.ErrNotFound):
		return "NotFound"
	default:
		var perr *semver.ParseError
		if errors.As(err, &perr) {
			return "ParseError"
		}
		return "Unknown"
	}
}

func (e *Engine) acquire(name string, id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[name]; busy {
		return false
	}
	e.inflight[name] = id
	return true
}

func (e *Engine) release(name string) {
	e.mu.Lock()
	delete(e.inflight, name)
	e.mu.Unlock()
}

func parseDigest(s string) (registry.Digest, error) {
	var d registry.Digest
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(d) {
		return d, fmt.Errorf("%w: malformed checksum %q", registry.ErrInvalidComponent, s)
	}
	copy(d[:], b)
	return d, nil
}
