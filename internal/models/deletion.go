package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityType names the four entity kinds tracked by the sync engine.
type EntityType string

const (
	EntityPaper      EntityType = "paper"
	EntityAnnotation EntityType = "annotation"
	EntityCollection EntityType = "collection"
	EntityTag        EntityType = "tag"
)

// DeletionRecord is a tombstone written when a tracked entity is deleted
// locally. It is never mutated; it is pruned once its DeletedDate
// precedes a confirmed sync watermark, which approximates "the server
// has observed this deletion".
type DeletionRecord struct {
	ID          uuid.UUID  `json:"id"`
	EntityType  EntityType `json:"entity_type"`
	EntityID    uuid.UUID  `json:"entity_id"`
	DeletedDate time.Time  `json:"deleted_date"`
}

// NewDeletionRecord builds a tombstone for the given entity, stamped now.
func NewDeletionRecord(entityType EntityType, entityID uuid.UUID) DeletionRecord {
	return DeletionRecord{
		ID:          uuid.New(),
		EntityType:  entityType,
		EntityID:    entityID,
		DeletedDate: time.Now().UTC(),
	}
}
