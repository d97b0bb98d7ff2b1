package models

import (
	"time"

	"github.com/google/uuid"
)

// Tag is a flat user label. Tags carry no modification timestamp, so
// change detection only sees a tag once, at creation; later edits to
// name or color are picked up only if the server pushes them back.
type Tag struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Color       string      `json:"color"`
	CreatedDate time.Time   `json:"created_date"`
	UsageCount  int         `json:"usage_count"`
	PaperIDs    []uuid.UUID `json:"paper_ids,omitempty"`
}
