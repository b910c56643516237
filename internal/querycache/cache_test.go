package querycache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeQueryIgnoresStatementOrder(t *testing.T) {
	require.Equal(t,
		normalizeQuery("+title:the\n-title:ugly"),
		normalizeQuery("-title:ugly\n+title:the"),
	)
}

func TestNormalizeQueryDropsBlankLines(t *testing.T) {
	require.Equal(t, "title:rambo", normalizeQuery("title:rambo\n\n\n"))
}

func TestBuildKeyVariesWithBatchVersionAndPage(t *testing.T) {
	c := &QueryCache{}
	k1 := c.buildKey(1, 10, "title:rambo", 0, 20)
	k2 := c.buildKey(1, 11, "title:rambo", 0, 20)
	k3 := c.buildKey(1, 10, "title:rambo", 20, 20)
	require.NotEqual(t, k1, k2)
	require.NotEqual(t, k1, k3)
	require.Equal(t, k1, c.buildKey(1, 10, "title:rambo", 0, 20))
}
