package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstPrefersEarlierKeys(t *testing.T) {
	t.Setenv("ORDERFLOW_TEST_PORT", "9090")
	t.Setenv("TEST_PORT", "8080")
	require.Equal(t, "9090", First("80", "ORDERFLOW_TEST_PORT", "TEST_PORT"))

	t.Setenv("ORDERFLOW_TEST_PORT", "  ")
	require.Equal(t, "8080", First("80", "ORDERFLOW_TEST_PORT", "TEST_PORT"))

	t.Setenv("TEST_PORT", "")
	require.Equal(t, "80", First("80", "ORDERFLOW_TEST_PORT", "TEST_PORT"))
}
