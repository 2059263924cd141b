package pinledger

import (
	"context"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

type LevelBlobs struct {
	db *leveldb.DB
}

var (
	_ BlobStore = (*LevelBlobs)(nil)
)

func NewLevelBlobs(dir string) (*LevelBlobs, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &LevelBlobs{db: db}, nil
}

func (l *LevelBlobs) Get(_ context.Context, key string) ([]byte, error) {
	bits, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrBlobNotFound
	}
	return bits, err
}

func (l *LevelBlobs) Put(_ context.Context, key string, data []byte) error {
	return l.db.Put([]byte(key), data, &opt.WriteOptions{Sync: true})
}

func (l *LevelBlobs) Close() error {
	return l.db.Close()
}
