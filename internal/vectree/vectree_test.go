package vectree

import (
	"path/filepath"
	"testing"

	"github.com/lattice-io/termdex/internal/block"
	"github.com/stretchr/testify/require"
)

func TestInsertMergesIdentical(t *testing.T) {
	tree := New(Thresholds{IdenticalAngle: 0.01, FoldAngle: 0.5})
	tree.Insert([]float64{1, 0, 0}, 1)
	tree.Insert([]float64{1, 0, 0}, 2)
	require.NotNil(t, tree.Root)
	require.Len(t, tree.Root.Docs, 2)
	require.Nil(t, tree.Root.Left)
	require.Nil(t, tree.Root.Right)
}

func TestInsertFoldsAndBranches(t *testing.T) {
	tree := New(Thresholds{IdenticalAngle: 0.001, FoldAngle: 0.3})
	tree.Insert([]float64{1, 0}, 1)
	tree.Insert([]float64{0.96, 0.28}, 2) // small angle: folds
	tree.Insert([]float64{0, 1}, 3)       // large angle: branches

	require.NotNil(t, tree.Root)
	hasChild := tree.Root.Left != nil || tree.Root.Right != nil
	require.True(t, hasChild, "expected at least one child after dissimilar insert")
}

func TestClosestMatch(t *testing.T) {
	tree := New(DefaultThresholds)
	tree.Insert([]float64{1, 0, 0}, 1)
	tree.Insert([]float64{0, 1, 0}, 2)
	docs, score := tree.ClosestMatch([]float64{1, 0, 0.01})
	require.NotEmpty(t, docs)
	require.GreaterOrEqual(t, score, 0.0)
}

func TestRoundTripSerialize(t *testing.T) {
	tree := New(DefaultThresholds)
	tree.Insert([]float64{1, 0, 0}, 1)
	tree.Insert([]float64{0, 1, 0}, 2)
	tree.Insert([]float64{0, 0, 1}, 3)

	dir := t.TempDir()
	idx, err := block.OpenAppendStream(filepath.Join(dir, "field.ix1"))
	require.NoError(t, err)
	vec, err := block.OpenAppendStream(filepath.Join(dir, "field.vec"))
	require.NoError(t, err)
	require.NoError(t, tree.WriteTo(idx, vec))
	require.NoError(t, idx.Close())
	require.NoError(t, vec.Close())

	idx2, err := block.OpenAppendStream(filepath.Join(dir, "field.ix1"))
	require.NoError(t, err)
	defer idx2.Close()
	vec2, err := block.OpenAppendStream(filepath.Join(dir, "field.vec"))
	require.NoError(t, err)
	defer vec2.Close()

	reloaded, err := ReadAll(idx2, vec2, DefaultThresholds)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Root)
}
