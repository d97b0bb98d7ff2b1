// Package syncer drives the two-way reconciliation between the local
// library replica and the sync server: pull, merge, gather, push, blob
// sync, commit. One cycle runs at a time per engine instance.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alexjbarnes/paper-sync/internal/blob"
	"github.com/alexjbarnes/paper-sync/internal/models"
	"github.com/alexjbarnes/paper-sync/internal/wire"
)

// Engine is the sync orchestrator. It has two states, idle and syncing,
// and unconditionally returns to idle when a cycle exits.
type Engine struct {
	repo      Repository
	blobs     *blob.Store
	transport Transport
	detector  *Detector
	logger    *slog.Logger

	// mu guards the single-flight check-and-set on syncing.
	mu      sync.Mutex
	syncing bool

	statusMu sync.Mutex
	status   Status
	subs     map[chan Status]struct{}

	autoMu   sync.Mutex
	autoStop chan struct{}
	autoWG   sync.WaitGroup
}

// NewEngine wires an orchestrator. transport may be nil for an
// unconfigured engine; Sync then fails with ErrNotConfigured.
func NewEngine(repo Repository, blobs *blob.Store, tr Transport, logger *slog.Logger) *Engine {
	return &Engine{
		repo:      repo,
		blobs:     blobs,
		transport: tr,
		detector:  NewDetector(repo),
		logger:    logger,
		subs:      make(map[chan Status]struct{}),
	}
}

// Detector exposes the engine's change detector for entity-owning code
// paths (tombstone recording, watermark reset).
func (e *Engine) Detector() *Detector {
	return e.detector
}

// Sync runs one full cycle: pull, merge, gather, push, blob upload,
// commit. Pull and merge failures are fatal and propagate; push and
// per-paper upload failures are recorded in the observable state and
// the cycle continues. The watermark advances only when the cycle
// commits.
func (e *Engine) Sync(ctx context.Context) error {
	if e.transport == nil {
		return ErrNotConfigured
	}

	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return ErrAlreadySyncing
	}
	e.syncing = true
	e.mu.Unlock()

	e.updateStatus(func(s *Status) {
		s.Syncing = true
		s.LastError = ""
		s.Progress = "starting"
	})

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
		e.updateStatus(func(s *Status) { s.Syncing = false })
	}()

	if err := e.runCycle(ctx); err != nil {
		e.updateStatus(func(s *Status) {
			s.LastError = err.Error()
			s.Progress = "failed"
		})
		return err
	}
	return nil
}

func (e *Engine) runCycle(ctx context.Context) error {
	since, err := e.repo.LastSync()
	if err != nil {
		return &PullError{Err: fmt.Errorf("reading watermark: %w", err)}
	}

	e.setProgress("pulling remote changes")
	resp, err := e.transport.Pull(ctx, since)
	if err != nil {
		return &PullError{Err: err}
	}

	e.setProgress("merging remote changes")
	if err := e.merge(resp); err != nil {
		return &PullError{Err: fmt.Errorf("merging: %w", err)}
	}

	// Gather after the merge so entities just pulled, and not locally
	// re-modified, are not redundantly re-pushed.
	e.setProgress("gathering local changes")
	snap, err := e.detector.GatherChanges()
	if err != nil {
		return fmt.Errorf("gathering changes: %w", err)
	}

	if !snap.IsEmpty() {
		e.setProgress("pushing local changes")
		e.push(ctx, snap)
		e.uploadBlobs(ctx, snap.Papers)
	}

	e.setProgress("committing")
	serverTS := wire.TimeFromWire(resp.ServerTimestamp)
	// The watermark never moves backwards, even if the server clock does.
	if since != nil && serverTS.Before(*since) {
		e.logger.Warn("server timestamp behind watermark, keeping watermark",
			slog.Time("server", serverTS),
			slog.Time("watermark", *since),
		)
		serverTS = *since
	}
	if err := e.repo.SetLastSync(serverTS); err != nil {
		return fmt.Errorf("advancing watermark: %w", err)
	}
	if err := e.detector.PruneOldDeletions(serverTS); err != nil {
		return fmt.Errorf("pruning tombstones: %w", err)
	}

	e.updateStatus(func(s *Status) {
		s.LastSync = &serverTS
		s.Progress = "idle"
	})
	e.logger.Info("sync complete",
		slog.Time("watermark", serverTS),
		slog.Int("pushed_papers", len(snap.Papers)),
		slog.Int("pushed_annotations", len(snap.Annotations)),
		slog.Int("pushed_collections", len(snap.Collections)),
		slog.Int("pushed_tags", len(snap.Tags)),
	)
	return nil
}

// merge applies a pull response to the local replica. Entities follow
// last-write-wins: a remote version replaces the local one only when
// its modification timestamp is strictly newer; ties keep local.
// Unknown remote entities are inserted preserving their IDs. Remote
// deletions apply unconditionally, even over a newer local edit.
func (e *Engine) merge(resp *wire.PullResponse) error {
	for _, dto := range resp.Papers {
		if err := e.mergePaper(dto); err != nil {
			return err
		}
	}
	for _, dto := range resp.Annotations {
		if err := e.mergeAnnotation(dto); err != nil {
			return err
		}
	}
	for _, dto := range resp.Collections {
		if err := e.mergeCollection(dto); err != nil {
			return err
		}
	}
	for _, dto := range resp.Tags {
		if err := e.mergeTag(dto); err != nil {
			return err
		}
	}
	return e.applyDeletions(resp.Deletions)
}

func (e *Engine) mergePaper(dto wire.PaperDTO) error {
	id, err := uuid.Parse(dto.ID)
	if err != nil {
		return e.repo.SavePaper(wire.NewPaperFromWire(dto))
	}
	existing, err := e.repo.GetPaper(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return e.repo.SavePaper(wire.NewPaperFromWire(dto))
	}
	if !wire.TimeFromWire(dto.ModifiedDate).After(existing.ModifiedDate) {
		return nil
	}
	wire.ApplyPaperWire(existing, dto)
	return e.repo.SavePaper(existing)
}

func (e *Engine) mergeAnnotation(dto wire.AnnotationDTO) error {
	id, err := uuid.Parse(dto.ID)
	if err != nil {
		return e.repo.SaveAnnotation(wire.NewAnnotationFromWire(dto))
	}
	existing, err := e.repo.GetAnnotation(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return e.repo.SaveAnnotation(wire.NewAnnotationFromWire(dto))
	}
	if !wire.TimeFromWire(dto.ModifiedDate).After(existing.ModifiedDate) {
		return nil
	}
	wire.ApplyAnnotationWire(existing, dto)
	return e.repo.SaveAnnotation(existing)
}

func (e *Engine) mergeCollection(dto wire.CollectionDTO) error {
	id, err := uuid.Parse(dto.ID)
	if err != nil {
		return e.repo.SaveCollection(wire.NewCollectionFromWire(dto))
	}
	existing, err := e.repo.GetCollection(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return e.repo.SaveCollection(wire.NewCollectionFromWire(dto))
	}
	if !wire.TimeFromWire(dto.ModifiedDate).After(existing.ModifiedDate) {
		return nil
	}
	wire.ApplyCollectionWire(existing, dto)
	return e.repo.SaveCollection(existing)
}

// mergeTag compares creation dates: tags carry no modification
// timestamp, so that is the only ordering signal available.
func (e *Engine) mergeTag(dto wire.TagDTO) error {
	id, err := uuid.Parse(dto.ID)
	if err != nil {
		return e.repo.SaveTag(wire.NewTagFromWire(dto))
	}
	existing, err := e.repo.GetTag(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return e.repo.SaveTag(wire.NewTagFromWire(dto))
	}
	if !wire.TimeFromWire(dto.CreatedDate).After(existing.CreatedDate) {
		return nil
	}
	wire.ApplyTagWire(existing, dto)
	return e.repo.SaveTag(existing)
}

// applyDeletions removes every local entity named in the server's
// deletion lists, regardless of local modification time. Deleted
// papers also drop their local blob.
func (e *Engine) applyDeletions(d wire.Deletions) error {
	for _, s := range d.PaperIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		if err := e.repo.DeletePaper(id); err != nil {
			return err
		}
		if _, err := e.blobs.Delete(id); err != nil {
			e.logger.Warn("removing blob for deleted paper",
				slog.String("paper_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	for _, s := range d.AnnotationIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		if err := e.repo.DeleteAnnotation(id); err != nil {
			return err
		}
	}
	for _, s := range d.CollectionIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		if err := e.repo.DeleteCollection(id); err != nil {
			return err
		}
	}
	for _, s := range d.TagIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		if err := e.repo.DeleteTag(id); err != nil {
			return err
		}
	}
	return nil
}

// push uploads the snapshot. Transport failures and server-reported
// conflicts are degraded: recorded, never fatal to the cycle.
func (e *Engine) push(ctx context.Context, snap *models.ChangeSnapshot) {
	resp, err := e.transport.Push(ctx, snapshotToWire(snap))
	if err != nil {
		e.recordError(&PushError{Err: err})
		return
	}
	if len(resp.Conflicts) > 0 {
		e.recordError(&PushError{Err: fmt.Errorf("server resolved %d conflicts: %s",
			len(resp.Conflicts), conflictSummary(resp.Conflicts))})
	}
}

// uploadBlobs sends the PDF payload for every pushed paper that has
// one locally. Per-paper failures are recorded; the rest still upload.
func (e *Engine) uploadBlobs(ctx context.Context, papers []*models.Paper) {
	for _, p := range papers {
		data, err := e.blobs.Read(p.ID)
		if err != nil {
			e.recordError(&PDFTransferError{PaperID: p.ID, Err: err})
			continue
		}
		if len(data) == 0 {
			continue
		}
		e.setProgress(fmt.Sprintf("uploading pdf %s", p.ID))
		if err := e.transport.UploadPDF(ctx, p.ID, data); err != nil {
			e.recordError(&PDFTransferError{PaperID: p.ID, Err: err})
		}
	}
}

// DownloadMissingPDFs fetches the payload for every paper that records
// a nonzero file size but has no local blob. Safe to re-run: failures
// leave the paper missing and eligible for the next attempt.
// Independent of the main cycle.
func (e *Engine) DownloadMissingPDFs(ctx context.Context) error {
	if e.transport == nil {
		return ErrNotConfigured
	}

	papers, err := e.repo.AllPapers()
	if err != nil {
		return fmt.Errorf("listing papers: %w", err)
	}

	var attempted, failed int
	for _, p := range papers {
		if p.FileSize == 0 || e.blobs.Exists(p.ID) {
			continue
		}
		attempted++

		data, err := e.transport.DownloadPDF(ctx, p.ID)
		if err != nil {
			// A hash mismatch discards the buffer inside the transport;
			// nothing corrupt can reach the blob store.
			failed++
			e.recordError(&PDFTransferError{PaperID: p.ID, Err: err})
			continue
		}
		if err := e.blobs.Save(p.ID, data); err != nil {
			failed++
			e.recordError(&PDFTransferError{PaperID: p.ID, Err: err})
			continue
		}
		e.logger.Info("downloaded missing pdf",
			slog.String("paper_id", p.ID.String()),
			slog.Int("bytes", len(data)),
		)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d missing pdf downloads failed", failed, attempted)
	}
	return nil
}

func snapshotToWire(snap *models.ChangeSnapshot) *wire.PushRequest {
	req := &wire.PushRequest{
		Papers:      make([]wire.PaperDTO, 0, len(snap.Papers)),
		Annotations: make([]wire.AnnotationDTO, 0, len(snap.Annotations)),
		Collections: make([]wire.CollectionDTO, 0, len(snap.Collections)),
		Tags:        make([]wire.TagDTO, 0, len(snap.Tags)),
	}
	for _, p := range snap.Papers {
		req.Papers = append(req.Papers, wire.ToPaperWire(p))
	}
	for _, a := range snap.Annotations {
		req.Annotations = append(req.Annotations, wire.ToAnnotationWire(a))
	}
	for _, c := range snap.Collections {
		req.Collections = append(req.Collections, wire.ToCollectionWire(c))
	}
	for _, t := range snap.Tags {
		req.Tags = append(req.Tags, wire.ToTagWire(t))
	}
	req.Deletions = wire.Deletions{
		PaperIDs:      idStrings(snap.DeletedPaperIDs),
		AnnotationIDs: idStrings(snap.DeletedAnnotationIDs),
		CollectionIDs: idStrings(snap.DeletedCollectionIDs),
		TagIDs:        idStrings(snap.DeletedTagIDs),
	}
	return req
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func conflictSummary(conflicts []wire.Conflict) string {
	const maxListed = 5
	s := ""
	for i, c := range conflicts {
		if i == maxListed {
			s += fmt.Sprintf(", and %d more", len(conflicts)-maxListed)
			break
		}
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s %s (%s)", c.EntityType, c.EntityID, c.Resolution)
	}
	return s
}
