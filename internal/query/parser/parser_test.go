package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParserLaws(t *testing.T) {
	n, err := Parse("k:v")
	require.NoError(t, err)
	require.Equal(t, OpOR, n.Op)

	n, err = Parse("+k:v")
	require.NoError(t, err)
	require.Equal(t, OpAND, n.Op)

	n, err = Parse("-k:v")
	require.NoError(t, err)
	require.Equal(t, OpNOT, n.Op)

	n, err = Parse("k:v\nk:w")
	require.NoError(t, err)
	require.Equal(t, "v", n.Value)
	require.NotNil(t, n.Next)
	require.Equal(t, "w", n.Next.Value)
}

func TestEmptyQueryNotAnError(t *testing.T) {
	n, err := Parse("")
	require.NoError(t, err)
	require.Nil(t, n)

	n, err = Parse("   \n  ")
	require.NoError(t, err)
	require.Nil(t, n)
}

func TestMissingColonIsParseError(t *testing.T) {
	_, err := Parse("justsometext")
	require.Error(t, err)
}

func TestModifiers(t *testing.T) {
	n, err := Parse("title:rambo~")
	require.NoError(t, err)
	require.Equal(t, ModFuzzy, n.Modifier)
	require.Equal(t, "rambo", n.Value)

	n, err = Parse("title:ra*")
	require.NoError(t, err)
	require.Equal(t, ModPrefix, n.Modifier)
	require.Equal(t, "ra", n.Value)
}

func TestEscapedValue(t *testing.T) {
	n, err := Parse(`created:\2024-01-01T00:00:00\`)
	require.NoError(t, err)
	require.Equal(t, "2024-01-01T00:00:00", n.Value)
	require.Equal(t, ModExact, n.Modifier)
}

func TestRangeCombination(t *testing.T) {
	n, err := Parse("year>1990\n+year<2000")
	require.NoError(t, err)
	require.True(t, n.IsRange)
	require.Equal(t, "1990", n.RangeLo)
	require.Equal(t, "2000", n.RangeHi)
	require.Nil(t, n.Next)
}

func TestANDNOTChain(t *testing.T) {
	n, err := Parse("+title:the\n-title:ugly")
	require.NoError(t, err)
	require.Equal(t, OpAND, n.Op)
	require.Equal(t, "the", n.Value)
	require.NotNil(t, n.Next)
	require.Equal(t, OpNOT, n.Next.Op)
	require.Equal(t, "ugly", n.Next.Value)
}

func TestMultiTermValueChainsViaThen(t *testing.T) {
	n, err := Parse("title:tomb raider")
	require.NoError(t, err)
	require.Equal(t, "tomb", n.Value)
	require.NotNil(t, n.Then)
	require.Equal(t, "raider", n.Then.Value)
	require.Nil(t, n.Next)
}
