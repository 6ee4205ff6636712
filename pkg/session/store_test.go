package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStateStore(t *testing.T) {
	t.Run("missing file is no state", func(t *testing.T) {
		store := NewFileStateStore(filepath.Join(t.TempDir(), "epicor_state.json"))

		_, err := store.Load()
		assert.ErrorIs(t, err, ErrNoState)
	})

	t.Run("save then load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "epicor_state.json")
		store := NewFileStateStore(path)
		state := []byte(`{"cookies":[{"name":"session","value":"live"}],"origins":[]}`)

		require.NoError(t, store.Save(state))

		got, err := store.Load()
		require.NoError(t, err)
		assert.Equal(t, state, got)
		assert.Equal(t, path, store.Location())

		_, err = os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
	})

	t.Run("save overwrites", func(t *testing.T) {
		store := NewFileStateStore(filepath.Join(t.TempDir(), "epicor_state.json"))

		require.NoError(t, store.Save([]byte(`{"cookies":[],"origins":[]}`)))
		require.NoError(t, store.Save([]byte(`{"cookies":[{"name":"a","value":"b"}]}`)))

		got, err := store.Load()
		require.NoError(t, err)
		assert.JSONEq(t, `{"cookies":[{"name":"a","value":"b"}]}`, string(got))
	})

	t.Run("malformed file is corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "epicor_state.json")
		require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0600))

		_, err := NewFileStateStore(path).Load()
		assert.ErrorIs(t, err, ErrCorruptState)
		assert.Contains(t, err.Error(), path)
	})

	t.Run("non-object JSON is corrupt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "epicor_state.json")
		require.NoError(t, os.WriteFile(path, []byte(`["cookies"]`), 0600))

		_, err := NewFileStateStore(path).Load()
		assert.ErrorIs(t, err, ErrCorruptState)
	})

	t.Run("directory in place of file is corrupt", func(t *testing.T) {
		path := t.TempDir()

		_, err := NewFileStateStore(path).Load()
		assert.ErrorIs(t, err, ErrCorruptState)
	})
}
