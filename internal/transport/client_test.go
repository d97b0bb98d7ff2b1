package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/alexjbarnes/paper-sync/internal/blob"
	"github.com/alexjbarnes/paper-sync/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClient builds a Client wired to conn as if Connect had already
// succeeded, with the reader goroutine replaced by direct feeds into
// inboundCh.
func testClient(conn wsConn) *Client {
	return &Client{
		cfg:       Config{Host: "sync.example.com", Port: 8443, Device: "test-device"},
		logger:    testLogger(),
		conn:      conn,
		inboundCh: make(chan inboundMsg, 64),
		connected: true,
	}
}

func (c *Client) feedText(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	c.inboundCh <- inboundMsg{typ: websocket.MessageText, data: data}
}

func (c *Client) feedBinary(data []byte) {
	c.inboundCh <- inboundMsg{typ: websocket.MessageBinary, data: data}
}

func ok() wire.GenericMessage {
	return wire.GenericMessage{Res: "ok"}
}

// --- url ---

func TestURL_TLS(t *testing.T) {
	c := New(Config{Host: "sync.example.com", Port: 443, UseTLS: true}, testLogger())
	assert.Equal(t, "wss://sync.example.com:443/sync", c.url())
}

func TestURL_Plain(t *testing.T) {
	c := New(Config{Host: "localhost", Port: 8080}, testLogger())
	assert.Equal(t, "ws://localhost:8080/sync", c.url())
}

// --- connection state ---

func TestRPC_NotConnectedBeforeConnect(t *testing.T) {
	c := New(Config{Host: "h", Port: 1}, testLogger())

	_, err := c.Pull(context.Background(), nil)

	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClose_ThenRPCFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	mock.EXPECT().Close(websocket.StatusNormalClosure, "bye").Return(nil)
	require.NoError(t, c.Close())

	_, err := c.Pull(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, c.Connected())
}

func TestClose_WithoutConnIsNil(t *testing.T) {
	c := New(Config{Host: "h", Port: 1}, testLogger())
	assert.NoError(t, c.Close())
}

func TestConnect_AfterCloseFails(t *testing.T) {
	c := New(Config{Host: "h", Port: 1}, testLogger())
	require.NoError(t, c.Close())

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

// --- rpc ---

func TestPull_EncodesSinceAndDecodesResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var sent []byte
	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ websocket.MessageType, p []byte) error {
			sent = append([]byte(nil), p...)
			return nil
		})

	serverTS := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	c.feedText(t, wire.PullResponse{
		Papers:          []wire.PaperDTO{{ID: uuid.New().String(), Title: "p1"}},
		ServerTimestamp: wire.TimeToWire(serverTS),
	})

	resp, err := c.Pull(context.Background(), &since)

	require.NoError(t, err)
	require.Len(t, resp.Papers, 1)
	assert.Equal(t, "p1", resp.Papers[0].Title)
	assert.Equal(t, wire.TimeToWire(serverTS), resp.ServerTimestamp)

	var req wire.PullRequest
	require.NoError(t, json.Unmarshal(sent, &req))
	assert.Equal(t, "pull", req.Op)
	assert.Equal(t, wire.TimeToWire(since), req.Since)
}

func TestPull_NilSinceRequestsFullLibrary(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	var sent []byte
	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ websocket.MessageType, p []byte) error {
			sent = append([]byte(nil), p...)
			return nil
		})
	c.feedText(t, wire.PullResponse{})

	_, err := c.Pull(context.Background(), nil)

	require.NoError(t, err)
	var req wire.PullRequest
	require.NoError(t, json.Unmarshal(sent, &req))
	assert.Zero(t, req.Since)
}

func TestRPC_ServerErrorSurfaced(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)
	c.feedText(t, wire.GenericMessage{Res: "error", Error: "unknown op"})

	_, err := c.Status(context.Background())

	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "unknown op", serr.Detail)
}

func TestRPC_BinaryFrameIsInvalidResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)
	c.feedBinary([]byte{0x01})

	_, err := c.Status(context.Background())

	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestRPC_ReaderErrorBecomesConnectionError(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)
	c.inboundCh <- inboundMsg{err: errors.New("broken pipe")}

	_, err := c.Status(context.Background())

	var cerr *ConnectionError
	assert.ErrorAs(t, err, &cerr)
}

func TestRPC_ContextCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Status(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconnect_SwapsConnectionSafelyUnderInFlightRPCs(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := testClient(nil)

	mkConn := func() *MockWSConn {
		m := NewMockWSConn(ctrl)
		m.EXPECT().Write(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		m.EXPECT().Read(gomock.Any()).
			DoAndReturn(func(ctx context.Context) (websocket.MessageType, []byte, error) {
				<-ctx.Done()
				return 0, nil, ctx.Err()
			}).AnyTimes()
		return m
	}
	c.setConn(mkConn())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
			_, _ = c.Status(ctx)
			cancel()
		}
	}()

	// Replace the connection identity repeatedly, as Run's reconnect
	// path does, while the RPCs above are still running.
	for i := 0; i < 50; i++ {
		connCtx, cancel := context.WithCancel(context.Background())
		c.setConn(mkConn())
		c.startReader(connCtx)
		cancel()
	}
	wg.Wait()
}

// --- upload ---

func TestUploadPDF_ChunkFraming(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	// 200 KiB: three full 64 KiB chunks plus an 8 KiB remainder.
	data := make([]byte, 200*1024)
	for i := range data {
		data[i] = byte(i)
	}
	paperID := uuid.New()

	var metaSent []byte
	var chunks [][]byte
	gomock.InOrder(
		mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ websocket.MessageType, p []byte) error {
				metaSent = append([]byte(nil), p...)
				return nil
			}),
		mock.EXPECT().Write(gomock.Any(), websocket.MessageBinary, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ websocket.MessageType, p []byte) error {
				chunks = append(chunks, append([]byte(nil), p...))
				return nil
			}).Times(4),
	)

	// One ack for the metadata, one per chunk.
	for i := 0; i < 5; i++ {
		c.feedText(t, ok())
	}

	require.NoError(t, c.UploadPDF(context.Background(), paperID, data))

	var meta wire.UploadMeta
	require.NoError(t, json.Unmarshal(metaSent, &meta))
	assert.Equal(t, "pdf.upload", meta.Op)
	assert.Equal(t, paperID.String(), meta.PaperID)
	assert.Equal(t, int64(len(data)), meta.TotalSize)
	assert.Equal(t, blob.SHA256Hex(data), meta.SHA256)

	require.Len(t, chunks, 4)
	assert.Len(t, chunks[0], 64*1024)
	assert.Len(t, chunks[1], 64*1024)
	assert.Len(t, chunks[2], 64*1024)
	assert.Len(t, chunks[3], 8*1024)

	var reassembled []byte
	for _, ch := range chunks {
		reassembled = append(reassembled, ch...)
	}
	assert.Equal(t, data, reassembled)
}

func TestUploadPDF_EmptyPayloadSendsNoChunks(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)
	c.feedText(t, ok())

	assert.NoError(t, c.UploadPDF(context.Background(), uuid.New(), nil))
}

func TestUploadPDF_MetadataRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)
	c.feedText(t, wire.GenericMessage{Res: "error", Error: "storage quota exceeded"})

	err := c.UploadPDF(context.Background(), uuid.New(), []byte("pdf"))

	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Detail, "quota")
}

func TestUploadPDF_NotConnected(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := testClient(NewMockWSConn(ctrl))
	c.connected = false

	err := c.UploadPDF(context.Background(), uuid.New(), []byte("pdf"))

	assert.ErrorIs(t, err, ErrNotConnected)
}

// --- download ---

func TestDownloadPDF_ReassemblesAndVerifies(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	data := make([]byte, 100*1024)
	for i := range data {
		data[i] = byte(i * 7)
	}

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)
	c.feedText(t, wire.DownloadMeta{
		TotalSize: int64(len(data)),
		SHA256:    blob.SHA256Hex(data),
		Pieces:    2,
	})
	c.feedBinary(data[:64*1024])
	c.feedBinary(data[64*1024:])

	got, err := c.DownloadPDF(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDownloadPDF_HashMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	data := []byte("expected payload")
	corrupted := []byte("corrupted payload")[:len(data)]

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)
	c.feedText(t, wire.DownloadMeta{
		TotalSize: int64(len(data)),
		SHA256:    blob.SHA256Hex(data),
		Pieces:    1,
	})
	c.feedBinary(corrupted)

	got, err := c.DownloadPDF(context.Background(), uuid.New())

	var herr *HashMismatchError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, blob.SHA256Hex(data), herr.Expected)
	assert.Equal(t, blob.SHA256Hex(corrupted), herr.Actual)
	assert.Nil(t, got)
}

func TestDownloadPDF_DeclaredSizeOutOfRange(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)
	c.feedText(t, wire.DownloadMeta{TotalSize: -1, Pieces: 0})

	_, err := c.DownloadPDF(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestDownloadPDF_ImplausiblePieceCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)
	c.feedText(t, wire.DownloadMeta{TotalSize: 10, Pieces: 5})

	_, err := c.DownloadPDF(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestDownloadPDF_AssembledLengthMismatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)
	c.feedText(t, wire.DownloadMeta{TotalSize: 100, SHA256: "irrelevant", Pieces: 1})
	c.feedBinary([]byte("short"))

	_, err := c.DownloadPDF(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestDownloadPDF_ServerError(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)
	c.feedText(t, wire.GenericMessage{Res: "error", Error: "no pdf for paper"})

	_, err := c.DownloadPDF(context.Background(), uuid.New())

	var serr *ServerError
	assert.ErrorAs(t, err, &serr)
}

// --- calls ---

func TestDeletePaper_SendsOpAndID(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)
	id := uuid.New()

	var sent []byte
	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ websocket.MessageType, p []byte) error {
			sent = append([]byte(nil), p...)
			return nil
		})
	c.feedText(t, ok())

	require.NoError(t, c.DeletePaper(context.Background(), id))

	var req wire.DeletePaperRequest
	require.NoError(t, json.Unmarshal(sent, &req))
	assert.Equal(t, "paper.delete", req.Op)
	assert.Equal(t, id.String(), req.ID)
}

func TestListPapers_DecodesPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockWSConn(ctrl)
	c := testClient(mock)

	mock.EXPECT().Write(gomock.Any(), websocket.MessageText, gomock.Any()).Return(nil)
	c.feedText(t, wire.ListPapersResponse{
		Papers: []wire.PaperDTO{{ID: uuid.New().String()}},
		Total:  41,
	})

	resp, err := c.ListPapers(context.Background(), 0, 20)

	require.NoError(t, err)
	assert.Len(t, resp.Papers, 1)
	assert.Equal(t, 41, resp.Total)
}
