package gatekeeper

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

// parsePublicKey decodes UPDATE_PUBLIC_KEY, a hex-encoded 32-byte Ed25519
// public key, matching original_source/src/update.cc's compiled-in key
// turned into an environment-variable override here.
func parsePublicKey(hexKey string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("want %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}

	return ed25519.PublicKey(raw), nil
}

// defaultHTTPClient bounds every update-check request, so a stalled update
// server can never wedge the updater's own goroutine indefinitely.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
