package set

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet_ZeroValue(t *testing.T) {
	var topics Set[string]

	require.Equal(t, 0, topics.Len())
	require.False(t, topics.Contains("com.udacity.weather"))

	require.True(t, topics.Add("com.udacity.weather"))
	require.False(t, topics.Add("com.udacity.weather"))

	require.True(t, topics.Contains("com.udacity.weather"))
	require.Equal(t, 1, topics.Len())
}

func TestSet_Of(t *testing.T) {
	ids := Of(40380, 40590, 40380)

	require.Equal(t, 2, ids.Len())
	require.True(t, ids.Contains(40590))
	require.False(t, ids.Contains(1))
}
