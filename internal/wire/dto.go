// Package wire defines the message contracts exchanged with the sync
// server and the mapping between them and the domain entities. All
// timestamps on the wire are integer microseconds since the Unix epoch;
// zero means absent.
package wire

// PaperDTO is the wire representation of a paper.
type PaperDTO struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Authors          []string          `json:"authors"`
	Abstract         string            `json:"abstract"`
	DOI              string            `json:"doi"`
	ArxivID          string            `json:"arxivId"`
	PublishedDate    int64             `json:"publishedDate,omitempty"`
	Journal          string            `json:"journal"`
	Volume           string            `json:"volume"`
	Issue            string            `json:"issue"`
	Pages            string            `json:"pages"`
	Keywords         []string          `json:"keywords"`
	PageCount        int               `json:"pageCount"`
	FileSize         int64             `json:"fileSize"`
	ReadingProgress  float64           `json:"readingProgress"`
	CurrentPage      int               `json:"currentPage"`
	LastOpenedDate   int64             `json:"lastOpenedDate,omitempty"`
	TotalReadingTime float64           `json:"totalReadingTime"`
	ImportedDate     int64             `json:"importedDate"`
	ModifiedDate     int64             `json:"modifiedDate"`
	CustomMetadata   map[string]string `json:"customMetadata,omitempty"`
	TagIDs           []string          `json:"tagIds"`
	CollectionIDs    []string          `json:"collectionIds"`
}

// RectDTO is an annotation bounding box on the wire.
type RectDTO struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AnnotationDTO is the wire representation of an annotation.
type AnnotationDTO struct {
	ID           string   `json:"id"`
	PaperID      string   `json:"paperId"`
	Type         string   `json:"type"`
	ColorHex     string   `json:"colorHex"`
	PageIndex    int      `json:"pageIndex"`
	Bounds       RectDTO  `json:"bounds"`
	SelectedText string   `json:"selectedText"`
	NoteContent  string   `json:"noteContent"`
	DrawingData  []byte   `json:"drawingData,omitempty"`
	Tags         []string `json:"tags"`
	CreatedDate  int64    `json:"createdDate"`
	ModifiedDate int64    `json:"modifiedDate"`
}

// CollectionDTO is the wire representation of a collection.
type CollectionDTO struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	ColorHex       string   `json:"colorHex"`
	IconName       string   `json:"iconName"`
	ParentID       string   `json:"parentId"`
	PaperIDs       []string `json:"paperIds"`
	SmartRulesData []byte   `json:"smartRulesData,omitempty"`
	Notes          string   `json:"notes"`
	SortOrder      int      `json:"sortOrder"`
	CreatedDate    int64    `json:"createdDate"`
	ModifiedDate   int64    `json:"modifiedDate"`
}

// TagDTO is the wire representation of a tag.
type TagDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ColorHex    string   `json:"colorHex"`
	CreatedDate int64    `json:"createdDate"`
	UsageCount  int      `json:"usageCount"`
	PaperIDs    []string `json:"paperIds"`
}

// Deletions lists deleted entity IDs per entity type.
type Deletions struct {
	PaperIDs      []string `json:"paperIds"`
	AnnotationIDs []string `json:"annotationIds"`
	CollectionIDs []string `json:"collectionIds"`
	TagIDs        []string `json:"tagIds"`
}

// Conflict is the server's per-entity resolution report for a push that
// could not be applied cleanly. It is informational; the server has
// already decided.
type Conflict struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Resolution string `json:"resolution"`
}

// ServerStatus is the reply to a status request.
type ServerStatus struct {
	ServerVersion    string `json:"serverVersion"`
	PaperCount       int    `json:"paperCount"`
	AnnotationCount  int    `json:"annotationCount"`
	CollectionCount  int    `json:"collectionCount"`
	TagCount         int    `json:"tagCount"`
	StorageBytesUsed int64  `json:"storageBytesUsed"`
	LastModified     int64  `json:"lastModified,omitempty"`
}
