package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalClient stores objects as files in a directory.
type LocalClient struct {
	fs  afero.Fs
	dir string
}

// NewLocalClient stores objects under dir on the given filesystem.
func NewLocalClient(filesystem afero.Fs, dir string) *LocalClient {
	return &LocalClient{fs: filesystem, dir: filepath.Clean(dir)}
}

// NewOSLocalClient stores objects under dir on the host filesystem.
func NewOSLocalClient(dir string) *LocalClient {
	return NewLocalClient(afero.NewOsFs(), dir)
}

// EnsureBucket creates the uploads directory if needed.
func (l *LocalClient) EnsureBucket(_ context.Context) error {
	return l.fs.MkdirAll(l.dir, 0o755)
}

// Put writes r to the file named key.
func (l *LocalClient) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	return afero.WriteReader(l.fs, l.path(key), r)
}

// Get opens the file named key.
func (l *LocalClient) Get(_ context.Context, key string) (Object, error) {
	f, err := l.fs.Open(l.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, ErrObjectNotFound
		}
		return Object{}, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return Object{}, err
	}
	if info.IsDir() {
		_ = f.Close()
		return Object{}, ErrObjectNotFound
	}
	return Object{
		Body:        f,
		ContentType: mime.TypeByExtension(filepath.Ext(key)),
		Size:        info.Size(),
	}, nil
}

// Delete removes the file named key.
func (l *LocalClient) Delete(_ context.Context, key string) error {
	if err := l.fs.Remove(l.path(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrObjectNotFound
		}
		return err
	}
	return nil
}

// Bucket returns the uploads directory.
func (l *LocalClient) Bucket() string {
	return l.dir
}

func (l *LocalClient) path(key string) string {
	return filepath.Join(l.dir, key)
}
