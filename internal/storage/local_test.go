package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()
	key := "7c0b3f5e-1d2a-4b8e-9f00-1234567890ab/avatar"

	assert.Equal(t, "local", s.Type())
	assert.False(t, s.Exists(ctx, key))

	require.NoError(t, s.Save(ctx, key, []byte("png-bytes"), "image/png"))
	assert.True(t, s.Exists(ctx, key))

	rc, err := s.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	url, err := s.URL(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, url)

	// Overwrite keeps a single file and leaves no temp files behind.
	require.NoError(t, s.Save(ctx, key, []byte("new"), "image/png"))
	entries, err := os.ReadDir(filepath.Join(dir, filepath.Dir(key)))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
