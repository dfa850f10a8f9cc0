package gateways

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ochairo/carbonrepo/internal/domain/entities"
	domainerrors "github.com/ochairo/carbonrepo/internal/domain/errors"
	"github.com/ochairo/carbonrepo/internal/domain/interfaces/gateways"
)

const (
	// HashChunkSize is the read size used when folding a stream into a digest
	HashChunkSize = 1024
	// maxSignatureSize bounds detached signature downloads
	maxSignatureSize = 10 * 1024
)

// signatureSuffixes are the detached signature names looked up next to an asset
var signatureSuffixes = []string{".asc", ".sig"}

// HashStream computes the SHA-256 hex digest of r, reading it once in
// HashChunkSize chunks without retaining earlier chunks
func HashStream(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, HashChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			return hex.EncodeToString(h.Sum(nil)), nil
		}
		if err != nil {
			return "", err
		}
	}
}

// DigestsMatch compares two hex digests ignoring case
func DigestsMatch(expected, observed string) bool {
	return expected != "" && strings.EqualFold(expected, observed)
}

// ChecksumVerifier downloads release assets and checks them against
// recorded digests
type ChecksumVerifier struct {
	source     gateways.ReleaseSource
	signatures gateways.SignatureChecker
	fanout     int
	log        zerolog.Logger
}

// NewChecksumVerifier creates a new checksum verifier. signatures may be
// nil to skip detached signature checks. fanout bounds how many assets of
// one release are in flight at once.
func NewChecksumVerifier(source gateways.ReleaseSource, signatures gateways.SignatureChecker, fanout int, log zerolog.Logger) *ChecksumVerifier {
	if fanout <= 0 {
		fanout = 1
	}
	return &ChecksumVerifier{
		source:     source,
		signatures: signatures,
		fanout:     fanout,
		log:        log,
	}
}

// Verify streams one asset, hashes it and compares the digest to expected.
// Failures are recorded on the result and never returned.
func (v *ChecksumVerifier) Verify(ctx context.Context, asset entities.Asset, expected *string, signature *entities.Asset) entities.AssetVerification {
	result := entities.AssetVerification{
		Name:           asset.Name,
		SourceURL:      asset.DownloadURL,
		ExpectedDigest: expected,
	}
	log := v.log.With().Str("asset", asset.Name).Logger()

	var sig []byte
	if signature != nil && v.signatures != nil {
		var err error
		if sig, err = v.fetchSignature(ctx, *signature); err != nil {
			result.SignatureVerified = entities.Bool(false)
			result.SignatureError = err.Error()
			log.Warn().Err(err).Msg("signature unavailable")
		}
	}

	streamed, err := v.stream(ctx, asset, sig)
	if err != nil {
		derr := domainerrors.Download(asset.Name, asset.DownloadURL, err)
		result.Matched = entities.Bool(false)
		result.Error = derr.Error()
		log.Error().Err(err).Int("status", domainerrors.StatusCode(err)).Msg("asset download failed")
		return result
	}

	result.ObservedDigest = entities.Digest(streamed.digest)
	if expected != nil && *expected != "" {
		result.Matched = entities.Bool(DigestsMatch(*expected, streamed.digest))
		if !*result.Matched {
			log.Warn().Str("expected", *expected).Str("actual", streamed.digest).Msg("hash mismatch")
		}
	}

	if sig != nil {
		result.SignatureVerified = entities.Bool(streamed.sigErr == nil)
		if streamed.sigErr != nil {
			result.SignatureError = streamed.sigErr.Error()
			log.Warn().Err(streamed.sigErr).Msg("signature verification failed")
		}
	}

	return result
}

type streamResult struct {
	digest string
	sigErr error
}

// stream reads the asset once. When sig is set the same bytes are teed
// into the signature checker.
func (v *ChecksumVerifier) stream(ctx context.Context, asset entities.Asset, sig []byte) (streamResult, error) {
	body, err := v.source.StreamAsset(ctx, asset.DownloadURL)
	if err != nil {
		return streamResult{}, err
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer body.Close()

	if sig == nil {
		digest, err := HashStream(body)
		return streamResult{digest: digest}, err
	}

	pr, pw := io.Pipe()
	sigDone := make(chan error, 1)
	go func() {
		err := v.signatures.CheckDetached(pr, sig)
		// Keep the tee unblocked if the checker stopped early
		_, _ = io.Copy(io.Discard, pr)
		sigDone <- err
	}()

	digest, err := HashStream(io.TeeReader(body, pw))
	pw.CloseWithError(err)
	return streamResult{digest: digest, sigErr: <-sigDone}, err
}

func (v *ChecksumVerifier) fetchSignature(ctx context.Context, signature entities.Asset) ([]byte, error) {
	body, err := v.source.StreamAsset(ctx, signature.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download signature: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxSignatureSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read signature: %w", err)
	}
	if len(data) < 10 {
		return nil, fmt.Errorf("signature file too small to be valid GPG signature")
	}
	return data, nil
}

// VerifyAll verifies every asset of a release. The result slice is in the
// same order as assets and always has the same length; one failed asset
// never affects the others.
func (v *ChecksumVerifier) VerifyAll(ctx context.Context, assets []entities.Asset, expected map[string]*string) []entities.AssetVerification {
	results := make([]entities.AssetVerification, len(assets))
	byName := make(map[string]entities.Asset, len(assets))
	for _, a := range assets {
		byName[a.Name] = a
	}

	var g errgroup.Group
	g.SetLimit(v.fanout)
	for i, asset := range assets {
		var sig *entities.Asset
		if v.signatures != nil {
			sig = findSignature(byName, asset.Name)
		}
		g.Go(func() error {
			results[i] = v.Verify(ctx, asset, expected[asset.Name], sig)
			return nil
		})
	}
	//nolint:errcheck // Verify records failures on each result
	g.Wait()

	return results
}

// findSignature returns the detached signature asset published for name
func findSignature(assets map[string]entities.Asset, name string) *entities.Asset {
	for _, suffix := range signatureSuffixes {
		if strings.HasSuffix(name, suffix) {
			return nil
		}
	}
	for _, suffix := range signatureSuffixes {
		if a, ok := assets[name+suffix]; ok {
			return &a
		}
	}
	return nil
}
