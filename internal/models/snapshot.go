package models

import "github.com/google/uuid"

// ChangeSnapshot is a point-in-time collection of everything that
// changed locally since the last watermark: four changed-entity lists
// and four deleted-ID lists, one pair per entity type. It is computed
// once per sync cycle and pushed as a unit.
type ChangeSnapshot struct {
	Papers      []*Paper
	Annotations []*Annotation
	Collections []*Collection
	Tags        []*Tag

	DeletedPaperIDs      []uuid.UUID
	DeletedAnnotationIDs []uuid.UUID
	DeletedCollectionIDs []uuid.UUID
	DeletedTagIDs        []uuid.UUID
}

// IsEmpty reports whether the snapshot carries no changes at all.
func (s *ChangeSnapshot) IsEmpty() bool {
	return len(s.Papers) == 0 &&
		len(s.Annotations) == 0 &&
		len(s.Collections) == 0 &&
		len(s.Tags) == 0 &&
		len(s.DeletedPaperIDs) == 0 &&
		len(s.DeletedAnnotationIDs) == 0 &&
		len(s.DeletedCollectionIDs) == 0 &&
		len(s.DeletedTagIDs) == 0
}
