package cryptox

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	secret := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(secret, salt)
	key2 := DeriveKey(secret, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}

	// snapshot of a known-good derivation
	expectedHex := "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	secret := []byte("secret-password")

	if bytes.Equal(DeriveKey(secret, []byte("salt-1")), DeriveKey(secret, []byte("salt-2"))) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := DeriveKey([]byte("device"), []byte("salt"))

	sealed, err := Seal(key, []byte(`{"accessToken":"a"}`), []byte("tokens"))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "accessToken")

	plain, err := Open(key, sealed, []byte("tokens"))
	require.NoError(t, err)
	require.Equal(t, `{"accessToken":"a"}`, string(plain))
}

func TestSeal_FreshNonceEachTime(t *testing.T) {
	key := DeriveKey([]byte("device"), []byte("salt"))

	a, err := Seal(key, []byte("same"), nil)
	require.NoError(t, err)
	b, err := Seal(key, []byte("same"), nil)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestOpen_Failures(t *testing.T) {
	key := DeriveKey([]byte("device"), []byte("salt"))
	other := DeriveKey([]byte("device"), []byte("pepper"))

	sealed, err := Seal(key, []byte("payload"), []byte("user"))
	require.NoError(t, err)

	_, err = Open(other, sealed, []byte("user"))
	require.Error(t, err, "wrong key")

	_, err = Open(key, sealed, []byte("tokens"))
	require.Error(t, err, "wrong aad")

	_, err = Open(key, sealed[:4], []byte("user"))
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Seal([]byte("short"), []byte("x"), nil)
	require.Error(t, err, "invalid key size")
}
