package assets

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/lightbooth/boothflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutRoundTripsByAssetIDAlone(t *testing.T) {
	store := NewDirStore(t.TempDir())
	content := []byte("captured photo bytes")

	ref, err := store.Put("guest.png", bytes.NewReader(content))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref.AssetID, ".png"), "display name extension folds into the ID")
	assert.Equal(t, ref.AssetID, ref.StoragePath)

	// A downstream reference often carries only the asset ID.
	reader, size, err := store.Open(models.MediaReference{AssetID: ref.AssetID})
	require.NoError(t, err)
	defer reader.Close() //nolint:errcheck

	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, int64(len(content)), size)
}

func TestPutWithoutExtension(t *testing.T) {
	store := NewDirStore(t.TempDir())

	ref, err := store.Put("capture", bytes.NewReader([]byte("raw")))
	require.NoError(t, err)
	assert.NotContains(t, ref.AssetID, ".")

	reader, _, err := store.Open(models.MediaReference{AssetID: ref.AssetID})
	require.NoError(t, err)
	require.NoError(t, reader.Close())
}

func TestOpenRejectsEscapingPaths(t *testing.T) {
	store := NewDirStore(t.TempDir())

	_, _, err := store.Open(models.MediaReference{StoragePath: "../outside.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes asset root")
}

func TestOpenMissingAsset(t *testing.T) {
	store := NewDirStore(t.TempDir())

	_, _, err := store.Open(models.MediaReference{AssetID: "absent"})
	require.Error(t, err)
}
