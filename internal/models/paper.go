package models

import (
	"time"

	"github.com/google/uuid"
)

// Paper is a single entry in the local library replica. PDF bytes are
// not held on the entity; they live in the blob store keyed by ID, and
// FileSize records the expected payload size.
//
// ModifiedDate must be bumped on every local mutation. Change detection
// is driven entirely by that timestamp.
type Paper struct {
	ID               uuid.UUID         `json:"id"`
	Title            string            `json:"title"`
	Authors          []string          `json:"authors"`
	Abstract         string            `json:"abstract"`
	DOI              string            `json:"doi"`
	ArxivID          string            `json:"arxiv_id"`
	PublishedDate    *time.Time        `json:"published_date,omitempty"`
	Journal          string            `json:"journal"`
	Volume           string            `json:"volume"`
	Issue            string            `json:"issue"`
	Pages            string            `json:"pages"`
	Keywords         []string          `json:"keywords"`
	PageCount        int               `json:"page_count"`
	FileSize         int64             `json:"file_size"`
	ReadingProgress  float64           `json:"reading_progress"`
	CurrentPage      int               `json:"current_page"`
	LastOpenedDate   *time.Time        `json:"last_opened_date,omitempty"`
	TotalReadingTime float64           `json:"total_reading_time"`
	ImportedDate     time.Time         `json:"imported_date"`
	ModifiedDate     time.Time         `json:"modified_date"`
	CustomMetadata   map[string]string `json:"custom_metadata,omitempty"`
	TagIDs           []uuid.UUID       `json:"tag_ids,omitempty"`
	CollectionIDs    []uuid.UUID       `json:"collection_ids,omitempty"`
}

// Touch bumps ModifiedDate. Call after any local mutation.
func (p *Paper) Touch() {
	p.ModifiedDate = time.Now().UTC()
}
