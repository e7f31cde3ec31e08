package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/anvil-platform/semverx/internal/events"
	"github.com/anvil-platform/semverx/internal/registry"
)

// Sweep verifies every registered component, reports each corrupted one to
// sink and returns the errors found.
func (c *Catalog) Sweep(sink events.Sink) []error {
	c.mu.RLock()
	errs := c.registry.Sweep()
	c.mu.RUnlock()
	for _, err := range errs {
		ev := events.Event{
			Time:   time.Now(),
			Kind:   events.KindIntegrity,
			Reason: "Corruption",
			Error:  err.Error(),
		}
		var corrupt *registry.CorruptionError
		if errors.As(err, &corrupt) {
			ev.Component = corrupt.Name
		}
		sink.Emit(ev)
	}
	return errs
}

// RunSweep calls Sweep every interval until ctx is done. It fits
// manager.RunnableFunc.
func (c *Catalog) RunSweep(ctx context.Context, interval time.Duration, sink events.Sink) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			c.Sweep(sink)
		}
	}
}
