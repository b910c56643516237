package collection_test

import (
	"testing"

	"github.com/lattice-io/termdex/internal/collection"
	"github.com/lattice-io/termdex/internal/docmodel"
	"github.com/lattice-io/termdex/internal/query/evaluator"
	"github.com/lattice-io/termdex/internal/valuestore"
	"github.com/lattice-io/termdex/internal/write"
	"github.com/stretchr/testify/require"
)

func indexTitles(t *testing.T, titles []string) *collection.Collection {
	t.Helper()
	col, err := collection.Open(t.TempDir(), "movies", collection.Config{PrimaryKeyField: "_id"})
	require.NoError(t, err)
	t.Cleanup(func() { col.Close() })

	sess, err := write.NewSession(col, write.Config{WorkerCount: 2, QueueDepth: 16})
	require.NoError(t, err)
	for _, title := range titles {
		doc := docmodel.Document{}
		doc.Set("title", valuestore.String(title))
		_, err := sess.Submit(doc)
		require.NoError(t, err)
	}
	require.NoError(t, sess.Commit("none"))
	return col
}

func docIDs(res evaluator.Result) []int64 {
	out := make([]int64, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.DocID
	}
	return out
}

func TestExactMatch(t *testing.T) {
	col := indexTitles(t, []string{
		"Rambo", "Rambo 2", "Rocky 2", "Raiders of the Lost Ark",
		"The Man in the Iron Mask", "The Ugly Truth",
	})
	ev := evaluator.New(col)

	res, err := ev.Query("title:rambo", 0, 0)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{0, 1}, docIDs(res))

	res, err = ev.Query("title:the", 0, 0)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{3, 4, 5}, docIDs(res))
}

func TestAndNotComposition(t *testing.T) {
	col := indexTitles(t, []string{
		"Rambo", "Rambo 2", "Rocky 2", "Raiders of the Lost Ark",
		"The Man in the Iron Mask", "The Ugly Truth",
	})
	ev := evaluator.New(col)

	res, err := ev.Query("+title:the\n-title:ugly", 0, 0)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{3, 4}, docIDs(res))
}

func TestPrefixMatch(t *testing.T) {
	col := indexTitles(t, []string{
		"Rambo", "Rambo 2", "Rocky 2", "Raiders of the Lost Ark", "Rain Man",
	})
	ev := evaluator.New(col)

	res, err := ev.Query("title:ra*", 0, 0)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{0, 1, 3, 4}, docIDs(res))
}

func TestFuzzyMatch(t *testing.T) {
	col := indexTitles(t, []string{
		"Rambo", "Rambo 2", "Rocky 2", "Raiders of the Lost Ark", "Tomb Raider",
	})
	ev := evaluator.New(col)

	res, err := ev.Query("title:raider", 0, 0)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{4}, docIDs(res))

	res, err = ev.Query("title:raider~", 0, 0)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{3, 4}, docIDs(res))
}
