package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliproom/cliproom/internal/testutil"
)

func newTestDiskStore(t *testing.T) *DiskStore {
	d, err := NewDiskStore(testutil.TestLogger(t), t.TempDir())
	require.NoError(t, err)
	return d
}

func TestDiskStorePutGet(t *testing.T) {
	d := newTestDiskStore(t)
	ctx := context.Background()

	require.NoError(t, d.Put(ctx, "AB12", "id-notes.txt", []byte("hello")))

	data, err := d.Get(ctx, "AB12", "id-notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = d.Get(ctx, "AB12", "missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestDiskStoreDelete(t *testing.T) {
	d := newTestDiskStore(t)
	ctx := context.Background()

	require.NoError(t, d.Put(ctx, "AB12", "id-notes.txt", []byte("hello")))
	require.NoError(t, d.Delete(ctx, "AB12", "id-notes.txt"))

	_, err := d.Get(ctx, "AB12", "id-notes.txt")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	assert.ErrorIs(t, d.Delete(ctx, "AB12", "id-notes.txt"), ErrBlobNotFound)
}

func TestDiskStoreDeleteAll(t *testing.T) {
	d := newTestDiskStore(t)
	ctx := context.Background()

	require.NoError(t, d.Put(ctx, "AB12", "one.txt", []byte("1")))
	require.NoError(t, d.Put(ctx, "AB12", "two.txt", []byte("2")))
	require.NoError(t, d.Put(ctx, "CD34", "other.txt", []byte("3")))

	require.NoError(t, d.DeleteAll(ctx, "AB12"))

	_, err := d.Get(ctx, "AB12", "one.txt")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	// Other rooms are untouched.
	data, err := d.Get(ctx, "CD34", "other.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), data)
}

func TestDiskStoreSanitizesNames(t *testing.T) {
	d := newTestDiskStore(t)
	ctx := context.Background()

	require.NoError(t, d.Put(ctx, "AB12", "../../escape.txt", []byte("x")))

	// The blob must land inside the room directory, not above the
	// upload root.
	entries, err := os.ReadDir(filepath.Join(d.uploadDir, "AB12"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	data, err := d.Get(ctx, "AB12", "../../escape.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}
