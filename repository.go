package pinledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

//go:generate mockgen -source=repository.go -destination=mocks/repository.go -package=mocks

// RecordStore loads and saves the whole account collection as one document.
// There are no partial writes.
type RecordStore interface {
	Load(ctx context.Context) ([]Account, error)
	Save(ctx context.Context, records []Account) error
}

// DocumentStore encodes the collection as an indented JSON array and keeps it
// under a single key of a BlobStore.
type DocumentStore struct {
	blobs BlobStore
	key   string
}

var (
	_ RecordStore = (*DocumentStore)(nil)
)

func NewDocumentStore(blobs BlobStore, key string) *DocumentStore {
	return &DocumentStore{
		blobs: blobs,
		key:   key,
	}
}

func (d *DocumentStore) Load(ctx context.Context) ([]Account, error) {
	bits, err := d.blobs.Get(ctx, d.key)
	if errors.Is(err, ErrBlobNotFound) {
		return []Account{}, nil
	}
	if err != nil {
		return nil, ErrStorage{Op: "load", Err: err}
	}

	var records []Account
	if err = json.Unmarshal(bits, &records); err != nil {
		return nil, ErrStorage{Op: "load", Err: err}
	}
	if records == nil {
		records = []Account{}
	}
	return records, nil
}

func (d *DocumentStore) Save(ctx context.Context, records []Account) error {
	if records == nil {
		records = []Account{}
	}
	// Account numbers may contain '&', which must stay unescaped.
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return ErrStorage{Op: "save", Err: err}
	}
	bits := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if err := d.blobs.Put(ctx, d.key, bits); err != nil {
		return ErrStorage{Op: "save", Err: err}
	}
	return nil
}
