package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// StartAutoSync launches the periodic sync loop. If a loop is already
// running it is stopped first, so loops never overlap. Errors inside
// the loop are recorded in the observable state, never propagated.
func (e *Engine) StartAutoSync(interval time.Duration) {
	e.autoMu.Lock()
	defer e.autoMu.Unlock()

	e.stopAutoSyncLocked()

	stop := make(chan struct{})
	e.autoStop = stop
	e.autoWG.Add(1)
	go e.autoSyncLoop(interval, stop)

	e.logger.Info("auto-sync started", slog.Duration("interval", interval))
}

// StopAutoSync stops the periodic loop and waits for it to exit. A
// sync cycle already underway is not aborted; stopping only prevents
// scheduling a new one.
func (e *Engine) StopAutoSync() {
	e.autoMu.Lock()
	defer e.autoMu.Unlock()
	e.stopAutoSyncLocked()
}

func (e *Engine) stopAutoSyncLocked() {
	if e.autoStop == nil {
		return
	}
	close(e.autoStop)
	e.autoStop = nil
	e.autoWG.Wait()
}

func (e *Engine) autoSyncLoop(interval time.Duration, stop chan struct{}) {
	defer e.autoWG.Done()

	for {
		// Checkpoint at loop top, before sleeping.
		select {
		case <-stop:
			return
		default:
		}

		timer := time.NewTimer(interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		// Re-check after waking: a stop during the sleep must not
		// schedule one last cycle.
		select {
		case <-stop:
			return
		default:
		}

		if err := e.Sync(context.Background()); err != nil && !errors.Is(err, ErrAlreadySyncing) {
			e.logger.Warn("auto-sync cycle failed", slog.String("error", err.Error()))
		}
	}
}
