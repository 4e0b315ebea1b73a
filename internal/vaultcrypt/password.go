package vaultcrypt

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Blob layout: nonce (24) ‖ salt (16) ‖ ciphertext. The salt is per blob,
// so equal plaintexts under equal passwords never produce equal output.
const (
	passwordSaltSize = 16

	argonTime    = uint32(2)
	argonMemKB   = uint32(64 * 1024)
	argonThreads = uint8(1)
)

func derivePasswordKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemKB, argonThreads, chacha20poly1305.KeySize)
}

func encryptPassword(password string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, passwordSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	key := derivePasswordKey(password, salt)
	defer zeroBytes(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(nonce)+len(salt)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, salt...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

func decryptPassword(password string, blob []byte) ([]byte, error) {
	headerSize := chacha20poly1305.NonceSizeX + passwordSaltSize
	if len(blob) < headerSize+chacha20poly1305.Overhead {
		return nil, ErrMalformedData
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	salt := blob[chacha20poly1305.NonceSizeX:headerSize]
	ciphertext := blob[headerSize:]

	key := derivePasswordKey(password, salt)
	defer zeroBytes(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
