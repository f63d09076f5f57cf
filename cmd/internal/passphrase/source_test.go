package passphrase

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceUsesEnvironment(t *testing.T) {
	t.Setenv(EnvVar, " secret ")
	src := NewSource(EnvVar, &bytes.Buffer{})

	value, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, " secret ", value)

	t.Setenv(EnvVar, "changed")
	again, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, " secret ", again)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv(EnvVar, "   ")
	_, err := NewSource(EnvVar, &bytes.Buffer{}).Get()
	require.ErrorContains(t, err, "set but empty")
}
