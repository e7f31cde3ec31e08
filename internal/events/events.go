// Package events carries structured notifications from the core to its
// observability collaborators. The core builds Event values and hands them to
// a Sink; formatting and shipping are the sink's business.
package events

import (
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Kind separates swap phase transitions from resolution failures.
type Kind string

const (
	KindSwapPhase       Kind = "SwapPhase"
	KindResolutionError Kind = "ResolutionError"
	KindIntegrity       Kind = "Integrity"
)

// Event is one structured notification.
type Event struct {
	Time      time.Time `json:"time"`
	Kind      Kind      `json:"kind"`
	Component string    `json:"component,omitempty"`
	// Phase is set for swap transitions, Error for failures; an event may
	// carry both (a phase reached because of an error).
	Phase string `json:"phase,omitempty"`
	// Reason is a short machine-readable class such as "VersionConflict".
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
	// Fatal marks events that warrant a hard alert.
	Fatal bool `json:"fatal,omitempty"`
}

type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout delivers each event to every sink in order.
type Fanout []Sink

func (f Fanout) Emit(e Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(e)
		}
	}
}

// LogSink writes events through a logr.Logger. Fatal events are logged at
// error level with alert=fatal.
type LogSink struct {
	Log logr.Logger
}

func (s LogSink) Emit(e Event) {
	kv := []any{
		"kind", string(e.Kind),
		"component", e.Component,
		"time", e.Time,
	}
	if e.Phase != "" {
		kv = append(kv, "phase", e.Phase)
	}
	if e.Reason != "" {
		kv = append(kv, "reason", e.Reason)
	}
	if e.Detail != "" {
		kv = append(kv, "detail", e.Detail)
	}
	switch {
	case e.Fatal:
		s.Log.Error(nil, e.Error, append(kv, "alert", "fatal")...)
	case e.Error != "":
		s.Log.Info("core error", append(kv, "error", e.Error)...)
	default:
		s.Log.V(1).Info("core event", kv...)
	}
}

// Recorder keeps every event in memory. Useful in tests and for the CLI's
// transaction trace.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of what has been recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Phases returns the Phase of each recorded swap event for component, in
// order.
func (r *Recorder) Phases(component string) []string {
	var out []string
	for _, e := range r.Events() {
		if e.Kind == KindSwapPhase && e.Component == component {
			out = append(out, e.Phase)
		}
	}
	return out
}
