package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictrack/apiserver/config"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newMemStorage(t *testing.T) (*Storage, afero.Fs) {
	t.Helper()
	memFS := afero.NewMemMapFs()
	s := NewStorage(NewLocalClient(memFS, "/uploads"))
	require.NoError(t, s.EnsureBucket(context.Background()))
	return s, memFS
}

func TestLocalStoragePutGetDelete(t *testing.T) {
	s, memFS := newMemStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "abc.png", bytes.NewReader(pngHeader), int64(len(pngHeader)), "image/png"))

	exists, err := afero.Exists(memFS, "/uploads/abc.png")
	require.NoError(t, err)
	assert.True(t, exists)

	obj, err := s.Get(ctx, "abc.png")
	require.NoError(t, err)
	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.NoError(t, obj.Body.Close())
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", obj.ContentType)
	assert.Equal(t, int64(len(pngHeader)), obj.Size)

	require.NoError(t, s.Delete(ctx, "abc.png"))
	_, err = s.Get(ctx, "abc.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "abc.png"), ErrObjectNotFound)
}

func TestStorageRejectsTraversalKeys(t *testing.T) {
	s, _ := newMemStorage(t)
	ctx := context.Background()

	for _, key := range []string{"", "../etc/passwd", "a/b.png", ".hidden", "x..png"} {
		assert.ErrorIs(t, s.Put(ctx, key, strings.NewReader("x"), 1, ""), ErrInvalidKey, key)
		_, err := s.Get(ctx, key)
		assert.ErrorIs(t, err, ErrObjectNotFound, key)
	}
}

func TestImageExt(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.gif"} {
		ext, err := ImageExt(name)
		require.NoError(t, err, name)
		assert.True(t, strings.HasSuffix(name, ext))
	}
	for _, name := range []string{"a.bmp", "noext", "evil.png.exe", ""} {
		_, err := ImageExt(name)
		assert.ErrorIs(t, err, ErrUnsupportedImage, name)
	}
}

func TestDetectImageType(t *testing.T) {
	contentType, err := DetectImageType(pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)

	gif, err := DetectImageType([]byte("GIF89a\x01\x00\x01\x00"))
	require.NoError(t, err)
	assert.Equal(t, "image/gif", gif)

	_, err = DetectImageType([]byte("#!/bin/sh\necho hi\n"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestMatchImageType(t *testing.T) {
	gifHeader := []byte("GIF89a\x01\x00\x01\x00")

	contentType, err := MatchImageType(".PNG", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)

	contentType, err = MatchImageType(".gif", gifHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/gif", contentType)

	_, err = MatchImageType(".png", gifHeader)
	assert.ErrorIs(t, err, ErrImageTypeMismatch)
	_, err = MatchImageType(".jpg", pngHeader)
	assert.ErrorIs(t, err, ErrImageTypeMismatch)
	_, err = MatchImageType(".png", []byte("plain text"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestNewImageKeyIsRandomAndKeepsExtension(t *testing.T) {
	a := NewImageKey(".PNG")
	b := NewImageKey(".PNG")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, ".PNG"))
	assert.NoError(t, ValidateKey(a))
}

func TestOpenLocalCreatesUploadsDir(t *testing.T) {
	dir := t.TempDir() + "/uploads"
	s, err := Open(context.Background(), config.StorageConfig{Backend: "local", UploadsDir: dir})
	require.NoError(t, err)
	defer s.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = Open(context.Background(), config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)
}
