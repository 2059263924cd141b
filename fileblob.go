package pinledger

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBlobs stores each key as a file under Dir. Writes land in a temporary
// file which is synced and then renamed over the target.
type FileBlobs struct {
	Dir string
}

var (
	_ BlobStore = (*FileBlobs)(nil)
)

func NewFileBlobs(dir string) (*FileBlobs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileBlobs{Dir: dir}, nil
}

func (f *FileBlobs) Get(_ context.Context, key string) ([]byte, error) {
	bits, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return bits, err
}

func (f *FileBlobs) Put(_ context.Context, key string, data []byte) error {
	tmp, err := os.CreateTemp(f.Dir, filepath.Base(key)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(key))
}

func (f *FileBlobs) path(key string) string {
	return filepath.Join(f.Dir, filepath.Base(key))
}
