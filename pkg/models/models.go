package models

import (
	"bytes"
	"time"
)

// EncryptionMethod identifies the strategy a KeyRecord's private key is
// protected with. A record's encrypted bytes are only meaningful together
// with its method and encryption ref.
type EncryptionMethod string

const (
	EncryptionNone                 EncryptionMethod = "none"
	EncryptionPasswordDerived      EncryptionMethod = "password"
	EncryptionAuthenticatorDerived EncryptionMethod = "platform_authenticator"
)

// Format 0 is the legacy layout where the stored plaintext was the 64-byte
// secret key (private seed followed by public key); format 1 stores the
// 32-byte private seed alone.
const (
	KeyRecordFormatLegacy  = 0
	KeyRecordFormatCurrent = 1
)

type KeyRecord struct {
	PublicKey           []byte           `json:"public_key"`
	EncryptedPrivateKey []byte           `json:"encrypted_private_key"`
	EncryptionMethod    EncryptionMethod `json:"encryption_method"`
	EncryptionRef       string           `json:"encryption_ref"`
	FormatVersion       int              `json:"format_version"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func (r KeyRecord) Clone() KeyRecord {
	out := r
	out.PublicKey = append([]byte(nil), r.PublicKey...)
	out.EncryptedPrivateKey = append([]byte(nil), r.EncryptedPrivateKey...)
	return out
}

func (r KeyRecord) SamePublicKey(pub []byte) bool {
	return bytes.Equal(r.PublicKey, pub)
}

// CredentialTag is the canary used to verify a candidate password without
// touching real key material. One per installation, replaced whenever the
// password changes.
type CredentialTag struct {
	Encrypted []byte    `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}

type WindowType string

const (
	WindowTypeMain         WindowType = "main"
	WindowTypeBackground   WindowType = "background"
	WindowTypeRegistration WindowType = "registration"
)

// AppWindowRecord caches a privileged UI window the extension opened. The
// host platform's window list stays authoritative; records are reconciled
// on every cold start and pruned when the window is gone.
type AppWindowRecord struct {
	WindowID int64      `json:"window_id"`
	Type     WindowType `json:"type"`
	Left     int        `json:"left"`
	Top      int        `json:"top"`
}
