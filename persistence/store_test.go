package persistence

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/taskqueen/model"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStoreSaveLoadDeleteList(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "widgets"))
	require.NoError(t, err)

	require.NoError(t, store.Save("w1", &widget{Name: "a", Count: 1}))
	require.NoError(t, store.Save("w2", &widget{Name: "b", Count: 2}))

	var got widget
	require.NoError(t, store.Load("w1", &got))
	assert.Equal(t, widget{Name: "a", Count: 1}, got)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, ids)

	require.NoError(t, store.Delete("w1"))
	var missing widget
	err = store.Load("w1", &missing)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	// Delete of an already-absent id is a no-op.
	require.NoError(t, store.Delete("w1"))
}

func TestStoreRejectsPathTraversal(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	err = store.Save("../evil", &widget{})
	assert.Error(t, err)
}
