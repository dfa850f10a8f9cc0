package gpg

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSigner generates a throwaway signing key and its armored public half
func newSigner(t *testing.T) (*openpgp.Entity, []byte) {
	t.Helper()
	entity, err := openpgp.NewEntity("Release Bot", "test", "release@example.com", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())
	return entity, buf.Bytes()
}

func armoredSignature(t *testing.T, signer *openpgp.Entity, payload []byte) []byte {
	t.Helper()
	var sig bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&sig, signer, bytes.NewReader(payload), nil))
	return sig.Bytes()
}

func binarySignature(t *testing.T, signer *openpgp.Entity, payload []byte) []byte {
	t.Helper()
	var sig bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&sig, signer, bytes.NewReader(payload), nil))
	return sig.Bytes()
}

func TestVerifier_ImportKeyFromFile(t *testing.T) {
	_, pub := newSigner(t)
	keyPath := filepath.Join(t.TempDir(), "release.asc")
	require.NoError(t, os.WriteFile(keyPath, pub, 0o600))

	v := NewVerifier()
	require.NoError(t, v.LoadKeyring(context.Background(), keyPath))
	assert.Equal(t, 1, v.GetKeyringSize())
}

// Test importing key from nonexistent file
func TestVerifier_ImportKeyFromFile_NonexistentFile(t *testing.T) {
	err := NewVerifier().ImportKeyFromFile("/nonexistent/key.asc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open key file")
}

// Test importing key from file with no keys
func TestVerifier_ImportKeyFromFile_Invalid(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "empty.asc")
	require.NoError(t, os.WriteFile(keyPath, []byte("not a gpg key"), 0o600))

	err := NewVerifier().ImportKeyFromFile(keyPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read key")
}

func TestVerifier_ImportKeysFromURL(t *testing.T) {
	_, pub := newSigner(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/KEYS" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(pub)
	}))
	defer server.Close()

	v := NewVerifier()
	require.NoError(t, v.LoadKeyring(context.Background(), server.URL+"/KEYS"))
	assert.Equal(t, 1, v.GetKeyringSize())

	err := v.LoadKeyring(context.Background(), server.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestVerifier_ImportKeys(t *testing.T) {
	signer, pub := newSigner(t)
	fp := fmt.Sprintf("%X", signer.PrimaryKey.Fingerprint)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Query().Get("search"), "0x")
		if len(id) < 16 || !strings.HasSuffix(fp, id) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(pub)
	}))
	defer server.Close()

	v := NewVerifier()
	v.keyservers = []string{server.URL}

	require.NoError(t, v.ImportKeys(context.Background(), []string{fp[len(fp)-16:]}))
	assert.Equal(t, 1, v.GetKeyringSize())

	require.NoError(t, v.ImportKeys(context.Background(), []string{strings.ToLower(fp)}))
	assert.Equal(t, 2, v.GetKeyringSize())

	err := v.ImportKeys(context.Background(), []string{"0000000000000000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to import key")
}

// Test ImportKeys with empty key IDs
func TestVerifier_ImportKeys_EmptyKeyIDs(t *testing.T) {
	err := NewVerifier().ImportKeys(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key IDs provided")
}

func TestVerifier_CheckDetached(t *testing.T) {
	signer, pub := newSigner(t)
	other, _ := newSigner(t)
	payload := bytes.Repeat([]byte("release payload "), 512)

	v := NewVerifier()
	keyPath := filepath.Join(t.TempDir(), "release.asc")
	require.NoError(t, os.WriteFile(keyPath, pub, 0o600))
	require.NoError(t, v.ImportKeyFromFile(keyPath))

	t.Run("armored", func(t *testing.T) {
		err := v.CheckDetached(bytes.NewReader(payload), armoredSignature(t, signer, payload))
		assert.NoError(t, err)
	})

	t.Run("binary", func(t *testing.T) {
		err := v.CheckDetached(iotest.OneByteReader(bytes.NewReader(payload)), binarySignature(t, signer, payload))
		assert.NoError(t, err)
	})

	t.Run("tampered payload", func(t *testing.T) {
		sig := armoredSignature(t, signer, payload)
		tampered := append([]byte("x"), payload...)
		err := v.CheckDetached(bytes.NewReader(tampered), sig)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "signature verification failed")
	})

	t.Run("unknown signer", func(t *testing.T) {
		err := v.CheckDetached(bytes.NewReader(payload), armoredSignature(t, other, payload))
		assert.Error(t, err)
	})

	t.Run("garbage signature", func(t *testing.T) {
		err := v.CheckDetached(bytes.NewReader(payload), []byte("definitely not a signature"))
		assert.Error(t, err)
	})
}

func TestVerifier_CheckDetached_NoKeys(t *testing.T) {
	err := NewVerifier().CheckDetached(strings.NewReader(""), []byte("sig"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no GPG keys imported")
}
