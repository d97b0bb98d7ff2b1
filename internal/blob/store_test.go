package blob

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "pdfs"))
	require.NoError(t, err)
	return s
}

func TestNewStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "pdfs")

	s, err := NewStore(dir)

	require.NoError(t, err)
	assert.Equal(t, dir, s.Dir())
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSaveRead_RoundTrip(t *testing.T) {
	s := testStore(t)
	id := uuid.New()
	data := []byte("%PDF-1.7 fake payload")

	require.NoError(t, s.Save(id, data))

	got, err := s.Read(id)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestSave_Overwrites(t *testing.T) {
	s := testStore(t)
	id := uuid.New()
	require.NoError(t, s.Save(id, []byte("first")))

	require.NoError(t, s.Save(id, []byte("second")))

	got, err := s.Read(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(uuid.New(), []byte("x")))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".pdf", filepath.Ext(entries[0].Name()))
}

func TestRead_MissingReturnsNilNil(t *testing.T) {
	s := testStore(t)

	got, err := s.Read(uuid.New())

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	id := uuid.New()
	require.NoError(t, s.Save(id, []byte("x")))

	existed, err := s.Delete(id)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(id)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestExists(t *testing.T) {
	s := testStore(t)
	id := uuid.New()

	assert.False(t, s.Exists(id))

	require.NoError(t, s.Save(id, []byte("x")))
	assert.True(t, s.Exists(id))
}

func TestSize(t *testing.T) {
	s := testStore(t)
	id := uuid.New()

	_, ok := s.Size(id)
	assert.False(t, ok)

	require.NoError(t, s.Save(id, make([]byte, 4096)))

	size, ok := s.Size(id)
	assert.True(t, ok)
	assert.Equal(t, int64(4096), size)
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	s := testStore(t)
	id := uuid.New()
	require.NoError(t, s.Save(id, []byte("stable")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				data, err := s.Read(id)
				assert.NoError(t, err)
				assert.Equal(t, []byte("stable"), data)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			assert.NoError(t, s.Save(id, []byte("stable")))
		}
	}()
	wg.Wait()
}

func TestSHA256Hex_KnownVector(t *testing.T) {
	// sha256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		SHA256Hex([]byte("abc")))
}

func TestSHA256Hex_IsLowercase(t *testing.T) {
	digest := SHA256Hex([]byte("payload"))

	assert.Len(t, digest, 64)
	for _, r := range digest {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'))
	}
}
