package baseline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-reconciler/internal/catalog"
	"github.com/JakeFAU/catalog-reconciler/internal/hash/sha256"
	"github.com/JakeFAU/catalog-reconciler/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestParseSkipsInvalidAndDuplicates(t *testing.T) {
	t.Parallel()

	ids, invalid, err := Parse([]byte(`{"workIds":["RJ000001"," RJ000002 ","RJ000001","VJ123456","RJ12","",null]}`))
	require.NoError(t, err)
	assert.Equal(t, []catalog.Identifier{"RJ000001", "RJ000002"}, ids)
	assert.Equal(t, 4, invalid)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	_, _, err := Parse([]byte(`{"workIds":`))
	require.Error(t, err)
}

func TestEncodeRoundTripsThroughParse(t *testing.T) {
	t.Parallel()

	in := []catalog.Identifier{"RJ000003", "RJ000001", "RJ01234567"}
	data, err := Encode(in)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"workIds"`))

	out, invalid, err := Parse(data)
	require.NoError(t, err)
	assert.Zero(t, invalid)
	assert.Equal(t, in, out)
}

func TestSourceLoadsFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "baseline.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"workIds":["RJ000001","RJ000002"]}`), 0o600))

	ids, err := NewSource(FileReader{}, path, zap.NewNop()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []catalog.Identifier{"RJ000001", "RJ000002"}, ids)
}

func TestSourceWithoutPathIsEmpty(t *testing.T) {
	t.Parallel()

	ids, err := NewSource(FileReader{}, "", nil).Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestSourceMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewSource(FileReader{}, filepath.Join(t.TempDir(), "nope.json"), nil).Load(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotExist(err))
}

func TestSnapshotterWritesContentAddressedObject(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	clock := fixedClock{t: time.Date(2026, 4, 5, 23, 0, 0, 0, time.UTC)}
	snap := NewSnapshotter(store, sha256.New(), clock, "snapshots")

	ids := []catalog.Identifier{"RJ000002", "RJ000001"}
	uri, err := snap.Write(context.Background(), ids)
	require.NoError(t, err)

	want := "snapshots/2026-04-05/" + sha256.New().Digest(ids) + ".json"
	assert.Equal(t, "memory://"+want, uri)

	loaded, err := NewSource(store, want, nil).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ids, loaded, "the document keeps collection order")

	again, err := snap.Write(context.Background(), []catalog.Identifier{"RJ000001", "RJ000002"})
	require.NoError(t, err)
	assert.Equal(t, uri, again, "the same set maps to the same object")
}
