package crypto

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keys", "owner.json")

	require.NoError(t, SaveToKeystoreWithParams(path, key, "correct horse", LightScrypt))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFromKeystore(path, "correct horse")
	require.NoError(t, err)
	require.Equal(t, key.Address(), loaded.Address())
	require.Equal(t, key.Bytes(), loaded.Bytes())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func TestSaveToKeystoreRefusesOverwrite(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "owner.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	err = SaveToKeystoreWithParams(path, key, "pw", LightScrypt)
	require.ErrorContains(t, err, "already exists")
}

func TestPrivateKeyFromHex(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	raw := "0x" + hex.EncodeToString(key.Bytes())

	parsed, err := PrivateKeyFromHex(raw)
	require.NoError(t, err)
	require.Equal(t, key.Address(), parsed.Address())

	_, err = PrivateKeyFromHex("0xzz")
	require.Error(t, err)
}
