package dispatch

import (
	"context"
	"crypto/ed25519"
	"fmt"
)

// Ed25519Signer signs opaque payloads with the 32-byte private seed the
// vault hands out.
type Ed25519Signer struct{}

func (Ed25519Signer) Sign(_ context.Context, privateKey, payload []byte) ([]byte, error) {
	if len(privateKey) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.SeedSize, len(privateKey))
	}
	key := ed25519.NewKeyFromSeed(privateKey)
	return ed25519.Sign(key, payload), nil
}
