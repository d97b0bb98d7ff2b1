package syncer

import (
	"log/slog"
	"time"
)

// Status is an immutable snapshot of the engine's observable state. It
// is the single channel through which outcomes reach any presentation
// layer; the engine assumes no UI-binding framework.
type Status struct {
	Syncing   bool
	LastSync  *time.Time
	LastError string
	Progress  string
}

// Subscribe returns a channel that receives a Status snapshot after
// every state change. Delivery is non-blocking: a subscriber that falls
// behind misses intermediate snapshots, never blocks the engine.
func (e *Engine) Subscribe() chan Status {
	ch := make(chan Status, 8)
	e.statusMu.Lock()
	e.subs[ch] = struct{}{}
	e.statusMu.Unlock()
	return ch
}

// Unsubscribe removes a channel returned by Subscribe.
func (e *Engine) Unsubscribe(ch chan Status) {
	e.statusMu.Lock()
	delete(e.subs, ch)
	e.statusMu.Unlock()
}

// Status returns the current state snapshot.
func (e *Engine) Status() Status {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.snapshotLocked()
}

// snapshotLocked copies the status so callers cannot alias the
// engine's LastSync pointer. Callers hold statusMu.
func (e *Engine) snapshotLocked() Status {
	s := e.status
	if e.status.LastSync != nil {
		t := *e.status.LastSync
		s.LastSync = &t
	}
	return s
}

// updateStatus applies a mutation to the status and fans the new
// snapshot out to all subscribers.
func (e *Engine) updateStatus(mutate func(*Status)) {
	e.statusMu.Lock()
	mutate(&e.status)
	snap := e.snapshotLocked()
	for ch := range e.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	e.statusMu.Unlock()
}

func (e *Engine) setProgress(msg string) {
	e.updateStatus(func(s *Status) { s.Progress = msg })
}

// recordError stores a degraded-path failure in the observable state
// without aborting the cycle.
func (e *Engine) recordError(err error) {
	e.logger.Warn("sync degraded", slog.String("error", err.Error()))
	e.updateStatus(func(s *Status) { s.LastError = err.Error() })
}
