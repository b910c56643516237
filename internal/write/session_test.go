package write

import (
	"testing"

	"github.com/lattice-io/termdex/internal/collection"
	"github.com/lattice-io/termdex/internal/docmodel"
	"github.com/lattice-io/termdex/internal/valuestore"
	"github.com/lattice-io/termdex/internal/version"
	"github.com/stretchr/testify/require"
)

func openTestCollection(t *testing.T) *collection.Collection {
	dir := t.TempDir()
	col, err := collection.Open(dir, "movies", collection.Config{PrimaryKeyField: "_id"})
	require.NoError(t, err)
	t.Cleanup(func() { col.Close() })
	return col
}

func TestSubmitAndCommit(t *testing.T) {
	col := openTestCollection(t)
	sess, err := NewSession(col, Config{WorkerCount: 2, QueueDepth: 16})
	require.NoError(t, err)

	titles := []string{"Rambo", "Rambo 2", "Rocky 2", "Raiders of the Lost Ark", "Rain Man", "The Ugly Truth"}
	for _, title := range titles {
		doc := docmodel.Document{}
		doc.Set("title", valuestore.String(title))
		_, err := sess.Submit(doc)
		require.NoError(t, err)
	}
	require.NoError(t, sess.Commit("none"))

	batches, err := version.List(col.DataDir, col.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.EqualValues(t, len(titles), batches[0].DocCount)
}

func TestConflictingWriteFailsFast(t *testing.T) {
	col := openTestCollection(t)
	sess, err := NewSession(col, Config{})
	require.NoError(t, err)
	defer sess.lock.Release()

	_, err = NewSession(col, Config{})
	require.Error(t, err)
}
