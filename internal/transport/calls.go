package transport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/alexjbarnes/paper-sync/internal/wire"
)

// Pull returns every entity changed server-side after since, the
// server's deletion lists, and its current timestamp. A nil since
// requests the full library.
func (c *Client) Pull(ctx context.Context, since *time.Time) (*wire.PullResponse, error) {
	req := wire.PullRequest{Op: "pull"}
	if since != nil {
		req.Since = wire.TimeToWire(*since)
	}

	var resp wire.PullResponse
	if err := c.rpc(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Push uploads a full change snapshot already mapped to wire DTOs.
func (c *Client) Push(ctx context.Context, req *wire.PushRequest) (*wire.PushResponse, error) {
	req.Op = "push"

	var resp wire.PushResponse
	if err := c.rpc(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the server's version and library counters.
func (c *Client) Status(ctx context.Context) (*wire.ServerStatus, error) {
	var resp wire.ServerStatus
	if err := c.rpc(ctx, wire.StatusRequest{Op: "status"}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpsertPaper creates or replaces a single paper server-side.
func (c *Client) UpsertPaper(ctx context.Context, paper wire.PaperDTO) error {
	return c.rpc(ctx, wire.UpsertPaperRequest{Op: "paper.upsert", Paper: paper}, nil)
}

// GetPaper fetches a single paper by ID.
func (c *Client) GetPaper(ctx context.Context, id uuid.UUID) (*wire.PaperDTO, error) {
	var resp wire.GetPaperResponse
	if err := c.rpc(ctx, wire.GetPaperRequest{Op: "paper.get", ID: id.String()}, &resp); err != nil {
		return nil, err
	}
	return &resp.Paper, nil
}

// ListPapers pages through the server's papers.
func (c *Client) ListPapers(ctx context.Context, offset, limit int) (*wire.ListPapersResponse, error) {
	var resp wire.ListPapersResponse
	if err := c.rpc(ctx, wire.ListPapersRequest{Op: "paper.list", Offset: offset, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeletePaper deletes a single paper by ID.
func (c *Client) DeletePaper(ctx context.Context, id uuid.UUID) error {
	return c.rpc(ctx, wire.DeletePaperRequest{Op: "paper.delete", ID: id.String()}, nil)
}
