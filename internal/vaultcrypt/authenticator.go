package vaultcrypt

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Blob layout: iv (12) ‖ ciphertext. The symmetric key is derived from the
// authenticator's input key material with the hashed device id as HKDF
// salt, binding blobs to the device they were written on.
const hkdfInfoAuthenticator = "lumen/vault/authenticator/v1"

func deriveAuthenticatorKey(keyMaterial []byte, deviceID string) ([]byte, error) {
	deviceSalt := blake2b.Sum256([]byte(deviceID))
	reader := hkdf.New(sha256.New, keyMaterial, deviceSalt[:], []byte(hkdfInfoAuthenticator))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

func encryptAuthenticator(keyMaterial []byte, deviceID string, plaintext []byte) ([]byte, error) {
	key, err := deriveAuthenticatorKey(keyMaterial, deviceID)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(iv)+len(plaintext)+aead.Overhead())
	out = append(out, iv...)
	return aead.Seal(out, iv, plaintext, nil), nil
}

func decryptAuthenticator(keyMaterial []byte, deviceID string, blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSize+chacha20poly1305.Overhead {
		return nil, ErrMalformedData
	}
	key, err := deriveAuthenticatorKey(keyMaterial, deviceID)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	iv := blob[:chacha20poly1305.NonceSize]
	plaintext, err := aead.Open(nil, iv, blob[chacha20poly1305.NonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
