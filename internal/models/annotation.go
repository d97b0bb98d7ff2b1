package models

import (
	"time"

	"github.com/google/uuid"
)

// AnnotationType identifies the kind of markup an annotation carries.
type AnnotationType string

const (
	AnnotationHighlight     AnnotationType = "highlight"
	AnnotationUnderline     AnnotationType = "underline"
	AnnotationStrikethrough AnnotationType = "strikethrough"
	AnnotationNote          AnnotationType = "note"
	AnnotationInk           AnnotationType = "ink"
)

// Rect is an annotation's bounding box in page coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Annotation is a piece of user markup attached to one page of a paper.
type Annotation struct {
	ID           uuid.UUID      `json:"id"`
	PaperID      uuid.UUID      `json:"paper_id"`
	Type         AnnotationType `json:"type"`
	Color        string         `json:"color"`
	PageIndex    int            `json:"page_index"`
	Bounds       Rect           `json:"bounds"`
	SelectedText string         `json:"selected_text"`
	NoteContent  string         `json:"note_content"`
	DrawingData  []byte         `json:"drawing_data,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	CreatedDate  time.Time      `json:"created_date"`
	ModifiedDate time.Time      `json:"modified_date"`
}

// Touch bumps ModifiedDate. Call after any local mutation.
func (a *Annotation) Touch() {
	a.ModifiedDate = time.Now().UTC()
}
