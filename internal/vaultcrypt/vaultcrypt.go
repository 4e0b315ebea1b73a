// Package vaultcrypt implements the interchangeable encryption strategies
// the credential vault stores private keys under. Strategies form a closed
// set dispatched on models.EncryptionMethod; every blob a strategy writes
// is self-describing, embedding whatever nonce or salt decryption needs.
package vaultcrypt

import (
	"errors"
	"fmt"

	"lumen-wallet/go-core/pkg/models"
)

var (
	// ErrDecryptionFailed covers both a wrong credential and a corrupted
	// ciphertext. The two are deliberately indistinguishable.
	ErrDecryptionFailed = errors.New("vaultcrypt decryption failed")

	// ErrMalformedData means the blob is too short to contain the layout
	// the strategy wrote (nonce, salt, authentication tag).
	ErrMalformedData = errors.New("vaultcrypt blob is malformed")

	ErrUnknownMethod = errors.New("vaultcrypt unknown encryption method")
)

// Credentials carries the secret material for one strategy. Method selects
// the strategy; the other fields are read only by the matching variant.
type Credentials struct {
	Method models.EncryptionMethod

	// Password for EncryptionPasswordDerived.
	Password string

	// KeyMaterial and DeviceID for EncryptionAuthenticatorDerived.
	// KeyMaterial is the input key material produced by the platform
	// authenticator ceremony; CredentialID names the stored authenticator
	// credential it came from.
	KeyMaterial  []byte
	CredentialID string
	DeviceID     string
}

// Ref returns the opaque encryption reference recorded next to a blob so
// later decryptions can locate the matching credential.
func (c Credentials) Ref() string {
	if c.Method == models.EncryptionAuthenticatorDerived {
		return c.CredentialID
	}
	return ""
}

// Encrypt seals plaintext under the credential's strategy. It never fails
// on well-formed input; the only error sources are the platform RNG and an
// unknown method.
func Encrypt(creds Credentials, plaintext []byte) ([]byte, error) {
	switch creds.Method {
	case models.EncryptionNone:
		return append([]byte(nil), plaintext...), nil
	case models.EncryptionPasswordDerived:
		return encryptPassword(creds.Password, plaintext)
	case models.EncryptionAuthenticatorDerived:
		return encryptAuthenticator(creds.KeyMaterial, creds.DeviceID, plaintext)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, creds.Method)
	}
}

// Decrypt opens a blob written by Encrypt under the same method. A wrong
// credential and a flipped ciphertext byte both surface as
// ErrDecryptionFailed; a blob too short for its layout surfaces as
// ErrMalformedData.
func Decrypt(creds Credentials, blob []byte) ([]byte, error) {
	switch creds.Method {
	case models.EncryptionNone:
		return append([]byte(nil), blob...), nil
	case models.EncryptionPasswordDerived:
		return decryptPassword(creds.Password, blob)
	case models.EncryptionAuthenticatorDerived:
		return decryptAuthenticator(creds.KeyMaterial, creds.DeviceID, blob)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, creds.Method)
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
