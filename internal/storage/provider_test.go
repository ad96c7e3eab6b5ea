package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a/b/c.txt", JoinPath("/a/", "", "b", "c.txt"))
	require.Equal(t, "c.txt", JoinPath("", "c.txt"))
	require.Empty(t, JoinPath("", "/"))
}
