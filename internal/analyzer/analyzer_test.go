package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeSplitsWords(t *testing.T) {
	a := Analyze("Tomb Raider 2", Options{})
	require.Equal(t, []string{"tomb", "raider", "2"}, a.Terms())
}

func TestAnalyzeSingleToken(t *testing.T) {
	a := Analyze("doc-42", Options{SingleToken: true})
	require.Equal(t, []string{"doc-42"}, a.Terms())
}

func TestEmbedDeterministic(t *testing.T) {
	e := HashEmbedder{}
	v1 := e.Embed([]rune("raider"))
	v2 := e.Embed([]rune("raider"))
	require.Equal(t, v1, v2)

	v3 := e.Embed([]rune("rambo"))
	require.NotEqual(t, v1, v3)
}
