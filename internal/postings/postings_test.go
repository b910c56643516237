package postings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewListAndRead(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "c.pos"))
	require.NoError(t, err)
	defer s.Close()

	head, err := s.NewList(1, []uint64{1, 2, 3})
	require.NoError(t, err)
	list, err := s.Read(1, head)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 2, 3}, list)
}

func TestAppendSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.pos")

	s, err := Open(path)
	require.NoError(t, err)
	head, err := s.NewList(1, []uint64{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, s.Append(1, head, []uint64{4, 5}))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	list, err := s2.Read(1, head)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 2, 3, 4, 5}, list)
}

func TestAppendDeterministicAcrossInterleaving(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "c.pos"))
	require.NoError(t, err)
	defer s.Close()

	headA, err := s.NewList(1, []uint64{10})
	require.NoError(t, err)
	headB, err := s.NewList(1, []uint64{20})
	require.NoError(t, err)

	require.NoError(t, s.Append(1, headA, []uint64{11}))
	require.NoError(t, s.Append(1, headB, []uint64{21}))
	require.NoError(t, s.Append(1, headA, []uint64{12}))

	listA, err := s.Read(1, headA)
	require.NoError(t, err)
	listB, err := s.Read(1, headB)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{10, 11, 12}, listA)
	require.ElementsMatch(t, []uint64{20, 21}, listB)
}

func TestReduceANDOR(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "c.pos"))
	require.NoError(t, err)
	defer s.Close()

	a, _ := s.NewList(1, []uint64{1, 2, 3})
	b, _ := s.NewList(1, []uint64{2, 3, 4})

	res, err := s.Reduce(1, []Cursor{
		{HeadOffset: a, Op: OpOR, Score: 1},
		{HeadOffset: b, Op: OpAND, Score: 1},
	}, 0, 10)
	require.NoError(t, err)
	ids := make([]uint64, len(res))
	for i, r := range res {
		ids[i] = r.DocID
	}
	require.ElementsMatch(t, []uint64{2, 3}, ids)
}

func TestFoldWithPerDocWeights(t *testing.T) {
	order, acc := Fold([]ScoredList{
		{Scores: map[uint64]float32{1: 0.5, 2: 0.9}, Op: OpAND},
		{Scores: map[uint64]float32{1: 0.2, 3: 0.7}, Op: OpOR},
	})
	require.ElementsMatch(t, []uint64{1, 2, 3}, order)
	require.InDelta(t, 0.7, acc[1], 1e-6)
	require.InDelta(t, 0.9, acc[2], 1e-6)
	require.InDelta(t, 0.7, acc[3], 1e-6)
}

func TestReduceNOT(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "c.pos"))
	require.NoError(t, err)
	defer s.Close()

	a, _ := s.NewList(1, []uint64{1, 2, 3, 4})
	b, _ := s.NewList(1, []uint64{2})

	res, err := s.Reduce(1, []Cursor{
		{HeadOffset: a, Op: OpOR, Score: 1},
		{HeadOffset: b, Op: OpNOT, Score: 1},
	}, 0, 10)
	require.NoError(t, err)
	ids := make([]uint64, len(res))
	for i, r := range res {
		ids[i] = r.DocID
	}
	require.ElementsMatch(t, []uint64{1, 3, 4}, ids)
}
