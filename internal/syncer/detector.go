package syncer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alexjbarnes/paper-sync/internal/models"
)

// Detector answers "what changed locally since the watermark" and
// maintains the tombstone log. It owns the persisted watermark through
// the repository.
type Detector struct {
	repo Repository
}

// NewDetector creates a Detector over the given repository.
func NewDetector(repo Repository) *Detector {
	return &Detector{repo: repo}
}

// LastSyncTimestamp returns the watermark, or nil before the first
// ever sync.
func (d *Detector) LastSyncTimestamp() (*time.Time, error) {
	return d.repo.LastSync()
}

// SetLastSyncTimestamp persists the watermark.
func (d *Detector) SetLastSyncTimestamp(t time.Time) error {
	return d.repo.SetLastSync(t)
}

// ClearLastSyncTimestamp removes the watermark, making the next gather
// return the full library.
func (d *Detector) ClearLastSyncTimestamp() error {
	return d.repo.ClearLastSync()
}

// RecordDeletion writes a tombstone for a locally deleted entity. This
// is called by the entity-owning code path at deletion time, never by
// the sync cycle itself.
func (d *Detector) RecordDeletion(entityType models.EntityType, entityID uuid.UUID) error {
	return d.repo.RecordDeletion(entityType, entityID)
}

// GatherChanges computes the change snapshot: every entity whose change
// timestamp is strictly after the watermark (the zero time before the
// first sync), plus tombstones after the watermark partitioned by
// entity type.
func (d *Detector) GatherChanges() (*models.ChangeSnapshot, error) {
	var since time.Time
	last, err := d.repo.LastSync()
	if err != nil {
		return nil, fmt.Errorf("reading watermark: %w", err)
	}
	if last != nil {
		since = *last
	}

	snap := &models.ChangeSnapshot{}

	if snap.Papers, err = d.repo.PapersChangedSince(since); err != nil {
		return nil, fmt.Errorf("gathering papers: %w", err)
	}
	if snap.Annotations, err = d.repo.AnnotationsChangedSince(since); err != nil {
		return nil, fmt.Errorf("gathering annotations: %w", err)
	}
	if snap.Collections, err = d.repo.CollectionsChangedSince(since); err != nil {
		return nil, fmt.Errorf("gathering collections: %w", err)
	}
	if snap.Tags, err = d.repo.TagsCreatedSince(since); err != nil {
		return nil, fmt.Errorf("gathering tags: %w", err)
	}

	deletions, err := d.repo.DeletionsSince(since)
	if err != nil {
		return nil, fmt.Errorf("gathering deletions: %w", err)
	}
	for _, rec := range deletions {
		switch rec.EntityType {
		case models.EntityPaper:
			snap.DeletedPaperIDs = append(snap.DeletedPaperIDs, rec.EntityID)
		case models.EntityAnnotation:
			snap.DeletedAnnotationIDs = append(snap.DeletedAnnotationIDs, rec.EntityID)
		case models.EntityCollection:
			snap.DeletedCollectionIDs = append(snap.DeletedCollectionIDs, rec.EntityID)
		case models.EntityTag:
			snap.DeletedTagIDs = append(snap.DeletedTagIDs, rec.EntityID)
		}
	}

	return snap, nil
}

// PruneOldDeletions removes tombstones strictly older than the cutoff.
// Called only after a cycle commits, with the server's reported
// timestamp, so every tombstone survives until the server has had a
// chance to observe it.
func (d *Detector) PruneOldDeletions(before time.Time) error {
	return d.repo.PruneDeletions(before)
}
