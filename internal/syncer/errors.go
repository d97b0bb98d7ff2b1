package syncer

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotConfigured is returned when Sync is called without a live
	// transport client.
	ErrNotConfigured = errors.New("sync engine not configured")

	// ErrAlreadySyncing is returned when Sync is called while a cycle
	// is in flight. At most one cycle runs per engine instance.
	ErrAlreadySyncing = errors.New("sync already in progress")
)

// PullError wraps a failure during the pull or merge stage. These are
// fatal to the cycle: the watermark does not advance.
type PullError struct {
	Err error
}

func (e *PullError) Error() string { return fmt.Sprintf("pull failed: %v", e.Err) }
func (e *PullError) Unwrap() error { return e.Err }

// PushError wraps a failure during the push stage. Push failures are
// degraded: recorded in the observable state, cycle continues.
type PushError struct {
	Err error
}

func (e *PushError) Error() string { return fmt.Sprintf("push failed: %v", e.Err) }
func (e *PushError) Unwrap() error { return e.Err }

// PDFTransferError wraps a per-paper blob transfer failure. Other
// papers still attempt transfer.
type PDFTransferError struct {
	PaperID uuid.UUID
	Err     error
}

func (e *PDFTransferError) Error() string {
	return fmt.Sprintf("pdf transfer failed for paper %s: %v", e.PaperID, e.Err)
}

func (e *PDFTransferError) Unwrap() error { return e.Err }
