package sqlite_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbridge/internal/adapters/sqlite"
	"go.trai.ch/kbridge/internal/core/domain"
)

func TestJournal_PutGetReplace(t *testing.T) {
	j, err := sqlite.Open(filepath.Join(t.TempDir(), "journal", "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	missing, err := j.Get(7)
	require.NoError(t, err)
	assert.Nil(t, missing)

	first := domain.KeyRecord{
		Key:       7,
		Function:  "shapes.box",
		Canonical: `{"functionName":"shapes.box","inputs":{}}`,
		FirstSeen: time.Date(2026, 10, 19, 8, 30, 0, 123, time.UTC),
	}
	require.NoError(t, j.Put(first))

	got, err := j.Get(7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.Function, got.Function)
	assert.Equal(t, first.Canonical, got.Canonical)
	assert.True(t, first.FirstSeen.Equal(got.FirstSeen))

	second := first
	second.Canonical = `{"functionName":"shapes.box","inputs":{"w":2}}`
	require.NoError(t, j.Put(second))

	got, err = j.Get(7)
	require.NoError(t, err)
	assert.Equal(t, second.Canonical, got.Canonical)
}

func TestJournal_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")

	j1, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, j1.Put(domain.KeyRecord{Key: 0xff, Function: "f", Canonical: "{}", FirstSeen: time.Now()}))
	require.NoError(t, j1.Close())

	j2, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j2.Close() })

	got, err := j2.Get(0xff)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "f", got.Function)
}
