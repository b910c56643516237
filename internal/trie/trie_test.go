package trie

import (
	"path/filepath"
	"testing"

	"github.com/lattice-io/termdex/internal/block"
	"github.com/stretchr/testify/require"
)

func TestInsertAndHas(t *testing.T) {
	tr := New()
	terms := []string{"rambo", "rambo 2", "rocky 2", "raiders of the lost ark", "rain man"}
	for _, term := range terms {
		tr.Insert(term)
	}
	for _, term := range terms {
		require.True(t, tr.Has(term), "expected %q to be present", term)
	}
	require.False(t, tr.Has("nonexistent"))
}

func TestStartsWith(t *testing.T) {
	tr := New()
	for _, term := range []string{"rambo", "rambo 2", "rocky 2", "raiders of the lost ark", "rain man"} {
		tr.Insert(term)
	}
	got := tr.StartsWith("ra")
	require.ElementsMatch(t, []string{"rambo", "rambo 2", "raiders of the lost ark", "rain man"}, got)
}

func TestNearFuzzy(t *testing.T) {
	tr := New()
	for _, term := range []string{"tomb raider", "raider"} {
		tr.Insert(term)
	}
	exact := tr.Near("raider", 0)
	require.Len(t, exact, 1)
	require.Equal(t, "raider", exact[0].Term)

	fuzzy := tr.Near("raider", 2)
	terms := make([]string, len(fuzzy))
	for i, m := range fuzzy {
		terms[i] = m.Term
	}
	require.Contains(t, terms, "raider")
}

func TestFuzzyMonotonicity(t *testing.T) {
	tr := New()
	for _, term := range []string{"kitten", "sitting", "mitten", "bitten", "kitchen"} {
		tr.Insert(term)
	}
	small := tr.Near("kitten", 1)
	large := tr.Near("kitten", 3)
	smallSet := map[string]bool{}
	for _, m := range small {
		smallSet[m.Term] = true
	}
	largeSet := map[string]bool{}
	for _, m := range large {
		largeSet[m.Term] = true
	}
	for term := range smallSet {
		require.True(t, largeSet[term], "near(e1) must be subset of near(e2): missing %q", term)
	}
}

func TestRange(t *testing.T) {
	tr := New()
	terms := []string{"0000123", "0000333", "0000666", "0012345", "0077777", "0100006", "1000989"}
	for _, term := range terms {
		tr.Insert(term)
	}
	got := tr.Range("0000333", "0100006")
	require.Equal(t, []string{"0000333", "0000666", "0012345", "0077777", "0100006"}, got)
}

func TestRoundTripSerialize(t *testing.T) {
	tr := New()
	terms := []string{"banana", "band", "bandana", "can", "candy", "a"}
	for _, term := range terms {
		tr.Insert(term)
	}

	dir := t.TempDir()
	stream, err := block.OpenAppendStream(filepath.Join(dir, "field.tri"))
	require.NoError(t, err)
	require.NoError(t, tr.WriteTo(stream))
	require.NoError(t, stream.Close())

	stream2, err := block.OpenAppendStream(filepath.Join(dir, "field.tri"))
	require.NoError(t, err)
	defer stream2.Close()

	reloaded, err := ReadAll(stream2)
	require.NoError(t, err)

	for _, term := range terms {
		require.True(t, reloaded.Has(term), "expected %q after reload", term)
	}
	got := reloaded.StartsWith("")
	want := append([]string{}, terms...)
	require.ElementsMatch(t, want, got)
}
