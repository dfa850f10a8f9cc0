// Package gpg provides GPG signature verification capabilities.
package gpg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
)

const armoredSignaturePrefix = "-----BEGIN PGP SIGNATURE-----"

// Verifier checks detached signatures of release assets against an
// imported keyring, using ProtonMail's go-crypto
type Verifier struct {
	keyring    openpgp.EntityList
	httpClient *http.Client
	keyservers []string
}

// NewVerifier creates a new GPG verifier
func NewVerifier() *Verifier {
	return &Verifier{
		keyring: make(openpgp.EntityList, 0),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		keyservers: []string{
			"https://keys.openpgp.org",
			"https://keyserver.ubuntu.com",
		},
	}
}

// LoadKeyring imports keys from source, which is either a local file or an
// http(s) URL of a KEYS file
func (v *Verifier) LoadKeyring(ctx context.Context, source string) error {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return v.ImportKeysFromURL(ctx, source)
	}
	return v.ImportKeyFromFile(source)
}

// ImportKeys imports keys by fingerprint from the configured keyservers
func (v *Verifier) ImportKeys(ctx context.Context, fingerprints []string) error {
	if len(fingerprints) == 0 {
		return fmt.Errorf("no key IDs provided")
	}

	for _, fp := range fingerprints {
		fp = strings.ToUpper(strings.TrimSpace(fp))
		if fp == "" {
			continue
		}

		var lastErr error
		imported := false
		for _, keyserver := range v.keyservers {
			entities, err := v.fetchKey(ctx, fmt.Sprintf("%s/pks/lookup?op=get&search=0x%s", keyserver, fp))
			if err != nil {
				lastErr = err
				continue
			}
			if !hasFingerprint(entities, fp) {
				lastErr = fmt.Errorf("no valid keys found matching fingerprint %s", fp)
				continue
			}
			v.keyring = append(v.keyring, entities...)
			imported = true
			break
		}

		if !imported {
			return fmt.Errorf("failed to import key %s from all keyservers: %w", fp, lastErr)
		}
	}

	return nil
}

func (v *Verifier) fetchKey(ctx context.Context, url string) (openpgp.EntityList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // Defer close
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("keyserver returned status %d", resp.StatusCode)
	}
	entities, err := openpgp.ReadArmoredKeyRing(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("no keys found in response")
	}
	return entities, nil
}

// hasFingerprint matches either the full fingerprint or its last 16 hex digits
func hasFingerprint(entities openpgp.EntityList, fp string) bool {
	for _, entity := range entities {
		full := fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint)
		if full == fp || (len(full) >= 16 && full[len(full)-16:] == fp) {
			return true
		}
	}
	return false
}

// ImportKeysFromURL imports all GPG keys from a KEYS file URL
func (v *Verifier) ImportKeysFromURL(ctx context.Context, keysURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, keysURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download KEYS file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("KEYS file download failed with status %d", resp.StatusCode)
	}

	entities, err := openpgp.ReadArmoredKeyRing(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return fmt.Errorf("failed to parse KEYS file: %w", err)
	}
	if len(entities) == 0 {
		return fmt.Errorf("no keys found in KEYS file")
	}

	v.keyring = append(v.keyring, entities...)
	return nil
}

// ImportKeyFromFile imports GPG keys from an armored or binary keyring file
func (v *Verifier) ImportKeyFromFile(keyPath string) error {
	//nolint:gosec // G304: keyPath is user configuration
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("failed to open key file: %w", err)
	}

	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		entities, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
	}
	if len(entities) == 0 {
		return fmt.Errorf("no keys found in file")
	}

	v.keyring = append(v.keyring, entities...)
	return nil
}

// CheckDetached reads signed to EOF and verifies the detached signature sig,
// which may be armored or binary
func (v *Verifier) CheckDetached(signed io.Reader, sig []byte) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("no GPG keys imported")
	}

	var err error
	if bytes.HasPrefix(bytes.TrimSpace(sig), []byte(armoredSignaturePrefix)) {
		_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, signed, bytes.NewReader(sig), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(v.keyring, signed, bytes.NewReader(sig), nil)
	}
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// GetKeyringSize returns the number of keys in the keyring
func (v *Verifier) GetKeyringSize() int {
	return len(v.keyring)
}
