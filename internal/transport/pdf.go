package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/paper-sync/internal/blob"
	"github.com/alexjbarnes/paper-sync/internal/wire"
)

// UploadPDF transfers a paper's PDF payload: one metadata message
// carrying the total size and SHA-256 digest, then fixed 64 KiB binary
// chunks covering data in order, the last chunk sized to the remainder.
// The server acks the metadata and each chunk.
func (c *Client) UploadPDF(ctx context.Context, paperID uuid.UUID, data []byte) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.Connected() {
		return ErrNotConnected
	}

	meta := wire.UploadMeta{
		Op:        "pdf.upload",
		PaperID:   paperID.String(),
		TotalSize: int64(len(data)),
		SHA256:    blob.SHA256Hex(data),
	}
	if err := c.writeJSON(ctx, meta); err != nil {
		return &ConnectionError{Err: fmt.Errorf("sending upload metadata: %w", err)}
	}
	if err := c.ack(ctx); err != nil {
		return err
	}

	pieces := (len(data) + chunkSize - 1) / chunkSize
	for i := 0; i < pieces; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, len(data))

		if err := c.writeBinary(ctx, data[start:end]); err != nil {
			return &ConnectionError{Err: fmt.Errorf("sending chunk %d/%d: %w", i+1, pieces, err)}
		}
		if err := c.ack(ctx); err != nil {
			return err
		}
	}

	c.logger.Info("uploaded pdf",
		slog.String("paper_id", paperID.String()),
		slog.Int("bytes", len(data)),
		slog.Int("pieces", pieces),
	)
	return nil
}

// DownloadPDF fetches a paper's PDF payload: a metadata reply declaring
// size, digest, and piece count, then that many binary frames appended
// in arrival order into a buffer pre-sized to the declared total. The
// assembled bytes are re-hashed and compared to the declared digest;
// any mismatch discards the buffer and fails with *HashMismatchError.
func (c *Client) DownloadPDF(ctx context.Context, paperID uuid.UUID) ([]byte, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.Connected() {
		return nil, ErrNotConnected
	}

	req := wire.DownloadRequest{Op: "pdf.download", PaperID: paperID.String()}
	if err := c.writeJSON(ctx, req); err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("sending download request: %w", err)}
	}

	var meta wire.DownloadMeta
	if err := c.decodeResponse(ctx, &meta); err != nil {
		return nil, err
	}

	if meta.TotalSize < 0 || meta.TotalSize > maxPDFBytes {
		return nil, fmt.Errorf("%w: declared size %d out of range", ErrInvalidResponse, meta.TotalSize)
	}
	maxPieces := int(meta.TotalSize/chunkSize) + 1
	if meta.Pieces < 0 || meta.Pieces > maxPieces {
		return nil, fmt.Errorf("%w: %d pieces exceeds expected max %d for size %d",
			ErrInvalidResponse, meta.Pieces, maxPieces, meta.TotalSize)
	}

	content := make([]byte, 0, meta.TotalSize)
	for i := 0; i < meta.Pieces; i++ {
		msg, err := c.readInbound(ctx)
		if err != nil {
			return nil, err
		}
		if msg.typ != websocket.MessageBinary {
			return nil, fmt.Errorf("%w: expected binary frame for piece %d/%d", ErrInvalidResponse, i+1, meta.Pieces)
		}
		content = append(content, msg.data...)
	}

	if int64(len(content)) != meta.TotalSize {
		return nil, fmt.Errorf("%w: assembled %d bytes, declared %d", ErrInvalidResponse, len(content), meta.TotalSize)
	}

	actual := blob.SHA256Hex(content)
	if actual != meta.SHA256 {
		return nil, &HashMismatchError{Expected: meta.SHA256, Actual: actual}
	}

	c.logger.Info("downloaded pdf",
		slog.String("paper_id", paperID.String()),
		slog.Int("bytes", len(content)),
		slog.Int("pieces", meta.Pieces),
	)
	return content, nil
}

// decodeResponse reads one reply, surfaces server errors, and decodes
// into out.
func (c *Client) decodeResponse(ctx context.Context, out any) error {
	raw, err := c.readResponse(ctx)
	if err != nil {
		return err
	}
	if gjson.GetBytes(raw, "res").Str == "error" {
		return &ServerError{Detail: gjson.GetBytes(raw, "error").Str}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
