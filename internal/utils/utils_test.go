package utils_test

import (
	"testing"

	"github.com/jrsteele09/ehr-auth-broker/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestRandomToken(t *testing.T) {
	a, err := utils.RandomToken(32)
	require.NoError(t, err)
	b, err := utils.RandomToken(32)
	require.NoError(t, err)

	require.Len(t, a, 43)
	require.NotEqual(t, a, b)
	require.NotContains(t, a, "=")
}

func TestSplitScopes(t *testing.T) {
	require.Equal(t, []string{}, utils.SplitScopes(""))
	require.Equal(t, []string{}, utils.SplitScopes("   "))
	require.Equal(t, []string{"patient/*.read", "openid"}, utils.SplitScopes(" patient/*.read  openid "))
	require.Equal(t, "a b", utils.JoinScopes([]string{"a", "b"}))
}

func TestContains(t *testing.T) {
	require.True(t, utils.Contains([]string{"a", "b"}, "b"))
	require.False(t, utils.Contains([]string{"a", "b"}, "c"))
	require.False(t, utils.Contains(nil, "c"))
}
