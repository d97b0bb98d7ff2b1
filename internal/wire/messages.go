package wire

// WebSocket message contracts. Every client request carries an "op"
// field; the server replies with either the matching response object or
// a GenericMessage with res "error".

// InitMessage is sent as the first message after connect. An empty
// token is allowed and means anonymous.
type InitMessage struct {
	Op     string `json:"op"`
	Token  string `json:"token,omitempty"`
	Device string `json:"device"`
}

// InitResponse is the server reply to an init message.
type InitResponse struct {
	Res           string `json:"res"`
	ServerVersion string `json:"serverVersion"`
}

// GenericMessage is used to decode the op/res fields before dispatching,
// and doubles as the server's plain ack and error reply.
type GenericMessage struct {
	Op    string `json:"op"`
	Res   string `json:"res"`
	Error string `json:"error,omitempty"`
}

// PullRequest asks for everything changed server-side after Since.
// Since is microseconds since epoch; zero requests the full library.
type PullRequest struct {
	Op    string `json:"op"`
	Since int64  `json:"since,omitempty"`
}

// PullResponse carries all server-side changes plus the server's
// current timestamp, which becomes the new watermark on commit.
type PullResponse struct {
	Papers          []PaperDTO      `json:"papers"`
	Annotations     []AnnotationDTO `json:"annotations"`
	Collections     []CollectionDTO `json:"collections"`
	Tags            []TagDTO        `json:"tags"`
	Deletions       Deletions       `json:"deletions"`
	ServerTimestamp int64           `json:"serverTimestamp"`
}

// PushRequest uploads a full local change snapshot.
type PushRequest struct {
	Op          string          `json:"op"`
	Papers      []PaperDTO      `json:"papers"`
	Annotations []AnnotationDTO `json:"annotations"`
	Collections []CollectionDTO `json:"collections"`
	Tags        []TagDTO        `json:"tags"`
	Deletions   Deletions       `json:"deletions"`
}

// PushResponse reports how the server applied a push. Conflicts are the
// server's own resolutions, not requests for client re-resolution.
type PushResponse struct {
	Success   bool       `json:"success"`
	Conflicts []Conflict `json:"conflicts"`
}

// StatusRequest asks for server counters.
type StatusRequest struct {
	Op string `json:"op"`
}

// UpsertPaperRequest creates or replaces a single paper server-side.
type UpsertPaperRequest struct {
	Op    string   `json:"op"`
	Paper PaperDTO `json:"paper"`
}

// GetPaperRequest fetches a single paper by ID.
type GetPaperRequest struct {
	Op string `json:"op"`
	ID string `json:"id"`
}

// GetPaperResponse is the reply to a get request.
type GetPaperResponse struct {
	Paper PaperDTO `json:"paper"`
}

// ListPapersRequest pages through the server's papers.
type ListPapersRequest struct {
	Op     string `json:"op"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// ListPapersResponse is one page of papers plus the total count.
type ListPapersResponse struct {
	Papers []PaperDTO `json:"papers"`
	Total  int        `json:"total"`
}

// DeletePaperRequest deletes a single paper by ID.
type DeletePaperRequest struct {
	Op string `json:"op"`
	ID string `json:"id"`
}

// UploadMeta announces a chunked PDF upload: one metadata message, then
// ceil(totalSize/64KiB) binary frames covering the payload in order.
type UploadMeta struct {
	Op        string `json:"op"`
	PaperID   string `json:"paperId"`
	TotalSize int64  `json:"totalSize"`
	SHA256    string `json:"sha256"`
}

// DownloadRequest asks for a paper's PDF payload.
type DownloadRequest struct {
	Op      string `json:"op"`
	PaperID string `json:"paperId"`
}

// DownloadMeta is the server's framing reply to a download request:
// Pieces binary frames follow, totalling exactly TotalSize bytes.
type DownloadMeta struct {
	TotalSize int64  `json:"totalSize"`
	SHA256    string `json:"sha256"`
	Pieces    int    `json:"pieces"`
}
