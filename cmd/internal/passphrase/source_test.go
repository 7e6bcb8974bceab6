package passphrase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceReadsEnvironment(t *testing.T) {
	t.Setenv("VAULT_TEST_PASSPHRASE", "  s3cret ")
	src := NewSource(" VAULT_TEST_PASSPHRASE ")

	value, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, "  s3cret ", value)

	t.Setenv("VAULT_TEST_PASSPHRASE", "changed")
	value, err = src.Get()
	require.NoError(t, err)
	require.Equal(t, "  s3cret ", value)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("VAULT_TEST_PASSPHRASE", "   ")
	_, err := NewSource("VAULT_TEST_PASSPHRASE").Get()
	require.ErrorContains(t, err, "VAULT_TEST_PASSPHRASE is set but empty")
}
