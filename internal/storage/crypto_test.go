package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := make([]byte, 32)
	copy(key, "0123456789abcdef0123456789abcdef")

	encrypted, err := Encrypt([]byte("hello, world"), key)
	require.NoError(t, err)
	assert.NotEqual(t, "hello, world", encrypted)

	decrypted, err := Decrypt(encrypted, key)
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(decrypted))
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	key := make([]byte, 32)

	a, err := Encrypt([]byte("same input"), key)
	require.NoError(t, err)
	b, err := Encrypt([]byte("same input"), key)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce must differ per encryption")
}

func TestDecryptWrongKey(t *testing.T) {
	key := make([]byte, 32)
	wrong := make([]byte, 32)
	wrong[0] = 1

	encrypted, err := Encrypt([]byte("hello"), key)
	require.NoError(t, err)

	_, err = Decrypt(encrypted, wrong)
	assert.Error(t, err)
}

func TestDecryptMalformedInput(t *testing.T) {
	key := make([]byte, 32)

	_, err := Decrypt("not base64!!!", key)
	assert.Error(t, err)

	_, err = Decrypt("c2hvcnQ=", key)
	assert.Error(t, err, "ciphertext shorter than the nonce must fail")
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a := DeriveKey("passphrase")
	b := DeriveKey("passphrase")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, DeriveKey("other passphrase"))
}
