package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cortex/internal/event"
)

func TestStoreAndGetEmbedding(t *testing.T) {
	db, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer db.Close()

	e, err := event.New(event.KnowledgeAcquired, "postgres uses MVCC", "s1", "proj", "main", nil, 0.7, "test")
	require.NoError(t, err)
	require.NoError(t, db.Append(e))

	_, ok, err := db.GetEmbedding(e.ID)
	require.NoError(t, err)
	require.False(t, ok)

	vec := []float32{0.1, 0.2, 0.3}
	require.NoError(t, db.StoreEmbedding(e.ID, vec))

	got, ok, err := db.GetEmbedding(e.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vec, got)
}

func TestBackfillEmbeddings(t *testing.T) {
	db, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 3; i++ {
		e, err := event.New(event.FileExplored, "explored file", "s1", "proj", "main", nil, 0.5, "test")
		require.NoError(t, err)
		require.NoError(t, db.Append(e))
	}

	n, err := db.CountEmbeddings()
	require.NoError(t, err)
	require.Equal(t, 0, n)

	embed := func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{float32(i), 1, 2}
		}
		return out, nil
	}

	generated, err := db.BackfillEmbeddings(2, embed, nil)
	require.NoError(t, err)
	require.Equal(t, 3, generated)

	n, err = db.CountEmbeddings()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	remaining, err := db.EventsWithoutEmbeddings(10)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestVecDistanceL2Function(t *testing.T) {
	db, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer db.Close()

	require.True(t, db.VecExtensionAvailable())

	a := event.EncodeEmbedding([]float32{0, 0})
	b := event.EncodeEmbedding([]float32{3, 4})
	var dist float64
	require.NoError(t, db.RawDB().QueryRow("SELECT vec_distance_l2(?, ?)", a, b).Scan(&dist))
	require.InDelta(t, 5.0, dist, 1e-6)
}
