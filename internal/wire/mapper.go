package wire

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/alexjbarnes/paper-sync/internal/models"
)

// Mapping between domain entities and wire DTOs. Both directions are
// pure functions. The empty-string/absent boundary is lossy by design:
// an explicit empty string and an absent value are indistinguishable on
// the wire, and a zero timestamp decodes to a nil pointer.

// TimeToWire converts a domain timestamp to wire microseconds.
// The zero time encodes as 0 (absent).
func TimeToWire(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// TimeFromWire converts wire microseconds back to a domain timestamp.
// 0 decodes to the zero time.
func TimeFromWire(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us).UTC()
}

func optTimeToWire(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return TimeToWire(*t)
}

func optTimeFromWire(us int64) *time.Time {
	if us == 0 {
		return nil
	}
	t := TimeFromWire(us)
	return &t
}

// parseID returns the UUID encoded in s, or a freshly generated one when
// s is not parseable. Constructing an entity from the wire never fails.
func parseID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.New()
	}
	return id
}

func idsToWire(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func idsFromWire(ids []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// normName NFC-normalizes a user-visible name coming off the wire so
// replicas on different platforms agree on byte-level equality.
func normName(s string) string {
	return norm.NFC.String(s)
}

func annotationTypeFromWire(s string) models.AnnotationType {
	switch models.AnnotationType(s) {
	case models.AnnotationHighlight,
		models.AnnotationUnderline,
		models.AnnotationStrikethrough,
		models.AnnotationNote,
		models.AnnotationInk:
		return models.AnnotationType(s)
	default:
		// Unrecognized or unspecified wire values decode to the default
		// rather than failing, so newer servers can ship new types.
		return models.AnnotationHighlight
	}
}

func collectionTypeFromWire(s string) models.CollectionType {
	switch models.CollectionType(s) {
	case models.CollectionStandard, models.CollectionSmart:
		return models.CollectionType(s)
	default:
		return models.CollectionStandard
	}
}

// ToPaperWire maps a paper to its DTO.
func ToPaperWire(p *models.Paper) PaperDTO {
	return PaperDTO{
		ID:               p.ID.String(),
		Title:            p.Title,
		Authors:          p.Authors,
		Abstract:         p.Abstract,
		DOI:              p.DOI,
		ArxivID:          p.ArxivID,
		PublishedDate:    optTimeToWire(p.PublishedDate),
		Journal:          p.Journal,
		Volume:           p.Volume,
		Issue:            p.Issue,
		Pages:            p.Pages,
		Keywords:         p.Keywords,
		PageCount:        p.PageCount,
		FileSize:         p.FileSize,
		ReadingProgress:  p.ReadingProgress,
		CurrentPage:      p.CurrentPage,
		LastOpenedDate:   optTimeToWire(p.LastOpenedDate),
		TotalReadingTime: p.TotalReadingTime,
		ImportedDate:     TimeToWire(p.ImportedDate),
		ModifiedDate:     TimeToWire(p.ModifiedDate),
		CustomMetadata:   p.CustomMetadata,
		TagIDs:           idsToWire(p.TagIDs),
		CollectionIDs:    idsToWire(p.CollectionIDs),
	}
}

// ApplyPaperWire overwrites an existing paper's fields from a DTO.
func ApplyPaperWire(p *models.Paper, dto PaperDTO) {
	p.Title = normName(dto.Title)
	p.Authors = dto.Authors
	p.Abstract = dto.Abstract
	p.DOI = dto.DOI
	p.ArxivID = dto.ArxivID
	p.PublishedDate = optTimeFromWire(dto.PublishedDate)
	p.Journal = dto.Journal
	p.Volume = dto.Volume
	p.Issue = dto.Issue
	p.Pages = dto.Pages
	p.Keywords = dto.Keywords
	p.PageCount = dto.PageCount
	p.FileSize = dto.FileSize
	p.ReadingProgress = dto.ReadingProgress
	p.CurrentPage = dto.CurrentPage
	p.LastOpenedDate = optTimeFromWire(dto.LastOpenedDate)
	p.TotalReadingTime = dto.TotalReadingTime
	p.ImportedDate = TimeFromWire(dto.ImportedDate)
	p.ModifiedDate = TimeFromWire(dto.ModifiedDate)
	p.CustomMetadata = dto.CustomMetadata
	p.TagIDs = idsFromWire(dto.TagIDs)
	p.CollectionIDs = idsFromWire(dto.CollectionIDs)
}

// NewPaperFromWire constructs a paper from a DTO, preserving the wire ID
// when it parses and generating a fresh one otherwise.
func NewPaperFromWire(dto PaperDTO) *models.Paper {
	p := &models.Paper{ID: parseID(dto.ID)}
	ApplyPaperWire(p, dto)
	return p
}

// ToAnnotationWire maps an annotation to its DTO.
func ToAnnotationWire(a *models.Annotation) AnnotationDTO {
	return AnnotationDTO{
		ID:           a.ID.String(),
		PaperID:      a.PaperID.String(),
		Type:         string(a.Type),
		ColorHex:     a.Color,
		PageIndex:    a.PageIndex,
		Bounds:       RectDTO{X: a.Bounds.X, Y: a.Bounds.Y, Width: a.Bounds.Width, Height: a.Bounds.Height},
		SelectedText: a.SelectedText,
		NoteContent:  a.NoteContent,
		DrawingData:  a.DrawingData,
		Tags:         a.Tags,
		CreatedDate:  TimeToWire(a.CreatedDate),
		ModifiedDate: TimeToWire(a.ModifiedDate),
	}
}

// ApplyAnnotationWire overwrites an existing annotation's fields from a DTO.
func ApplyAnnotationWire(a *models.Annotation, dto AnnotationDTO) {
	a.PaperID = parseID(dto.PaperID)
	a.Type = annotationTypeFromWire(dto.Type)
	a.Color = dto.ColorHex
	a.PageIndex = dto.PageIndex
	a.Bounds = models.Rect{X: dto.Bounds.X, Y: dto.Bounds.Y, Width: dto.Bounds.Width, Height: dto.Bounds.Height}
	a.SelectedText = dto.SelectedText
	a.NoteContent = dto.NoteContent
	a.DrawingData = dto.DrawingData
	a.Tags = dto.Tags
	a.CreatedDate = TimeFromWire(dto.CreatedDate)
	a.ModifiedDate = TimeFromWire(dto.ModifiedDate)
}

// NewAnnotationFromWire constructs an annotation from a DTO.
func NewAnnotationFromWire(dto AnnotationDTO) *models.Annotation {
	a := &models.Annotation{ID: parseID(dto.ID)}
	ApplyAnnotationWire(a, dto)
	return a
}

// ToCollectionWire maps a collection to its DTO. An absent parent
// encodes as an empty string.
func ToCollectionWire(c *models.Collection) CollectionDTO {
	parent := ""
	if c.ParentID != nil {
		parent = c.ParentID.String()
	}
	return CollectionDTO{
		ID:             c.ID.String(),
		Name:           c.Name,
		Type:           string(c.Type),
		ColorHex:       c.Color,
		IconName:       c.Icon,
		ParentID:       parent,
		PaperIDs:       idsToWire(c.PaperIDs),
		SmartRulesData: c.SmartRules,
		Notes:          c.Notes,
		SortOrder:      c.SortOrder,
		CreatedDate:    TimeToWire(c.CreatedDate),
		ModifiedDate:   TimeToWire(c.ModifiedDate),
	}
}

// ApplyCollectionWire overwrites an existing collection's fields from a DTO.
func ApplyCollectionWire(c *models.Collection, dto CollectionDTO) {
	c.Name = normName(dto.Name)
	c.Type = collectionTypeFromWire(dto.Type)
	c.Color = dto.ColorHex
	c.Icon = dto.IconName
	if id, err := uuid.Parse(dto.ParentID); err == nil {
		c.ParentID = &id
	} else {
		c.ParentID = nil
	}
	c.PaperIDs = idsFromWire(dto.PaperIDs)
	c.SmartRules = dto.SmartRulesData
	c.Notes = dto.Notes
	c.SortOrder = dto.SortOrder
	c.CreatedDate = TimeFromWire(dto.CreatedDate)
	c.ModifiedDate = TimeFromWire(dto.ModifiedDate)
}

// NewCollectionFromWire constructs a collection from a DTO.
func NewCollectionFromWire(dto CollectionDTO) *models.Collection {
	c := &models.Collection{ID: parseID(dto.ID)}
	ApplyCollectionWire(c, dto)
	return c
}

// ToTagWire maps a tag to its DTO.
func ToTagWire(t *models.Tag) TagDTO {
	return TagDTO{
		ID:          t.ID.String(),
		Name:        t.Name,
		ColorHex:    t.Color,
		CreatedDate: TimeToWire(t.CreatedDate),
		UsageCount:  t.UsageCount,
		PaperIDs:    idsToWire(t.PaperIDs),
	}
}

// ApplyTagWire overwrites an existing tag's fields from a DTO.
func ApplyTagWire(t *models.Tag, dto TagDTO) {
	t.Name = normName(dto.Name)
	t.Color = dto.ColorHex
	t.CreatedDate = TimeFromWire(dto.CreatedDate)
	t.UsageCount = dto.UsageCount
	t.PaperIDs = idsFromWire(dto.PaperIDs)
}

// NewTagFromWire constructs a tag from a DTO.
func NewTagFromWire(dto TagDTO) *models.Tag {
	t := &models.Tag{ID: parseID(dto.ID)}
	ApplyTagWire(t, dto)
	return t
}
