package pinledger_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arhyth/pinledger"
)

func TestFileBlobs(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the directory", func(tt *testing.T) {
		dir := filepath.Join(tt.TempDir(), "nested", "data")
		_, err := pinledger.NewFileBlobs(dir)
		require.Nil(tt, err)
		_, err = os.Stat(dir)
		assert.Nil(tt, err)
	})

	t.Run("Put replaces the file and leaves no temporaries", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		dir := tt.TempDir()
		fb, err := pinledger.NewFileBlobs(dir)
		reqrd.Nil(err)

		reqrd.Nil(fb.Put(ctx, "data.json", []byte("first")))
		reqrd.Nil(fb.Put(ctx, "data.json", []byte("second")))

		bits, err := fb.Get(ctx, "data.json")
		reqrd.Nil(err)
		as.Equal("second", string(bits))
		entries, err := os.ReadDir(dir)
		reqrd.Nil(err)
		as.Len(entries, 1)
	})

	t.Run("keys cannot escape the directory", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		dir := tt.TempDir()
		fb, err := pinledger.NewFileBlobs(dir)
		reqrd.Nil(err)

		reqrd.Nil(fb.Put(ctx, "../outside.json", []byte("x")))
		_, err = os.Stat(filepath.Join(dir, "outside.json"))
		as.Nil(err)
	})
}
