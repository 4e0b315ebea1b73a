// Package vault stores private keys at rest under interchangeable
// encryption strategies and hands them out transiently for signing. Format
// migration is lazy: legacy records are normalized the first time they are
// re-encrypted, never in a big-bang pass.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lumen-wallet/go-core/internal/storage"
	"lumen-wallet/go-core/internal/vaultcrypt"
	"lumen-wallet/go-core/pkg/models"
)

var (
	ErrInvalidCredentialMethod = errors.New("credential method does not match record")
	ErrPasswordLocked          = errors.New("password attempts are temporarily locked")
)

const (
	// credentialTagPlaintext is the known canary encrypted under the
	// current password. Decrypting it proves a candidate password without
	// touching real key material.
	credentialTagPlaintext = "lumen/credential-tag/v1"

	privateKeySize      = 32
	legacySecretKeySize = 64

	maxFailedAttempts = 5
	lockDuration      = 5 * time.Minute
)

type Vault struct {
	records *RecordStore
	log     *slog.Logger
	now     func() time.Time

	mu             sync.Mutex
	failedAttempts int
	lockedUntil    time.Time
}

func New(store storage.Store, log *slog.Logger) *Vault {
	if log == nil {
		log = slog.Default()
	}
	return &Vault{
		records: NewRecordStore(store),
		log:     log,
		now:     time.Now,
	}
}

func (v *Vault) Records() *RecordStore {
	return v.records
}

// GetDecrypted returns the private key bytes for publicKey. The supplied
// credential's method must match the one the record was encrypted with.
// Legacy format-0 records stored the private seed concatenated with the
// public key; the seed prefix is extracted before returning.
func (v *Vault) GetDecrypted(ctx context.Context, publicKey []byte, creds vaultcrypt.Credentials) ([]byte, error) {
	record, err := v.records.Get(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	if record.EncryptionMethod != creds.Method {
		return nil, fmt.Errorf("%w: record uses %q, caller supplied %q",
			ErrInvalidCredentialMethod, record.EncryptionMethod, creds.Method)
	}
	plaintext, err := vaultcrypt.Decrypt(creds, record.EncryptedPrivateKey)
	if err != nil {
		return nil, err
	}
	return normalizePrivateKey(plaintext, record.FormatVersion)
}

// Upgrade re-encrypts a record under a different credential, normalizing
// it to the current format. This is the only path that changes a record's
// protection method. The store write is the last step, so a failure
// anywhere earlier leaves the old record untouched.
func (v *Vault) Upgrade(ctx context.Context, record models.KeyRecord, current, target vaultcrypt.Credentials) (models.KeyRecord, error) {
	if record.EncryptionMethod != current.Method {
		return models.KeyRecord{}, fmt.Errorf("%w: record uses %q, caller supplied %q",
			ErrInvalidCredentialMethod, record.EncryptionMethod, current.Method)
	}
	plaintext, err := vaultcrypt.Decrypt(current, record.EncryptedPrivateKey)
	if err != nil {
		return models.KeyRecord{}, err
	}
	privateKey, err := normalizePrivateKey(plaintext, record.FormatVersion)
	if err != nil {
		return models.KeyRecord{}, err
	}
	encrypted, err := vaultcrypt.Encrypt(target, privateKey)
	if err != nil {
		return models.KeyRecord{}, err
	}

	upgraded := record.Clone()
	upgraded.EncryptedPrivateKey = encrypted
	upgraded.EncryptionMethod = target.Method
	upgraded.EncryptionRef = target.Ref()
	upgraded.FormatVersion = models.KeyRecordFormatCurrent
	upgraded.UpdatedAt = v.now().UTC()
	if err := v.records.Put(ctx, upgraded); err != nil {
		return models.KeyRecord{}, err
	}
	v.log.Info("key record upgraded", "method", upgraded.EncryptionMethod, "format_version", upgraded.FormatVersion)
	return upgraded, nil
}

// VerifyPassword decrypts the credential tag with the candidate. A wrong
// password is a normal false result, not an error; repeated failures lock
// further attempts for a fixed window.
func (v *Vault) VerifyPassword(ctx context.Context, candidate string) (bool, error) {
	v.mu.Lock()
	if v.now().Before(v.lockedUntil) {
		v.mu.Unlock()
		return false, ErrPasswordLocked
	}
	v.mu.Unlock()

	tag, err := v.records.Tag(ctx)
	if err != nil {
		return false, err
	}
	creds := vaultcrypt.Credentials{Method: models.EncryptionPasswordDerived, Password: candidate}
	plaintext, err := vaultcrypt.Decrypt(creds, tag.Encrypted)
	if err != nil {
		if errors.Is(err, vaultcrypt.ErrDecryptionFailed) {
			v.recordFailedAttempt()
			return false, nil
		}
		return false, err
	}
	if string(plaintext) != credentialTagPlaintext {
		v.recordFailedAttempt()
		return false, nil
	}

	v.mu.Lock()
	v.failedAttempts = 0
	v.mu.Unlock()
	return true, nil
}

// SetPassword replaces the credential tag, making password the new
// installation password for verification purposes. Existing key records
// keep their encryption until re-encrypted.
func (v *Vault) SetPassword(ctx context.Context, password string) error {
	creds := vaultcrypt.Credentials{Method: models.EncryptionPasswordDerived, Password: password}
	encrypted, err := vaultcrypt.Encrypt(creds, []byte(credentialTagPlaintext))
	if err != nil {
		return err
	}
	return v.records.PutTag(ctx, models.CredentialTag{
		Encrypted: encrypted,
		UpdatedAt: v.now().UTC(),
	})
}

// ReencryptAll moves every record from the current credential to the
// target one. All records are decrypted first, then all are encrypted,
// then the whole batch is persisted last: a failure during decryption
// never leaves the store half re-encrypted.
func (v *Vault) ReencryptAll(ctx context.Context, current, target vaultcrypt.Credentials) error {
	records, err := v.records.All(ctx)
	if err != nil {
		return err
	}

	privateKeys := make([][]byte, len(records))
	for i, record := range records {
		if record.EncryptionMethod != current.Method {
			return fmt.Errorf("%w: record uses %q, caller supplied %q",
				ErrInvalidCredentialMethod, record.EncryptionMethod, current.Method)
		}
		plaintext, err := vaultcrypt.Decrypt(current, record.EncryptedPrivateKey)
		if err != nil {
			return err
		}
		privateKeys[i], err = normalizePrivateKey(plaintext, record.FormatVersion)
		if err != nil {
			return err
		}
	}

	updated := make([]models.KeyRecord, len(records))
	now := v.now().UTC()
	for i, record := range records {
		encrypted, err := vaultcrypt.Encrypt(target, privateKeys[i])
		if err != nil {
			return err
		}
		next := record.Clone()
		next.EncryptedPrivateKey = encrypted
		next.EncryptionMethod = target.Method
		next.EncryptionRef = target.Ref()
		next.FormatVersion = models.KeyRecordFormatCurrent
		next.UpdatedAt = now
		updated[i] = next
	}

	if err := v.records.PutMany(ctx, updated); err != nil {
		return err
	}
	v.log.Info("vault re-encrypted", "records", len(updated), "method", target.Method)
	return nil
}

// ChangePassword verifies the old password, re-encrypts every
// password-protected record under the new one, and replaces the
// credential tag.
func (v *Vault) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	ok, err := v.VerifyPassword(ctx, oldPassword)
	if err != nil {
		return err
	}
	if !ok {
		return vaultcrypt.ErrDecryptionFailed
	}
	current := vaultcrypt.Credentials{Method: models.EncryptionPasswordDerived, Password: oldPassword}
	target := vaultcrypt.Credentials{Method: models.EncryptionPasswordDerived, Password: newPassword}
	if err := v.ReencryptAll(ctx, current, target); err != nil {
		return err
	}
	return v.SetPassword(ctx, newPassword)
}

func (v *Vault) SaveMany(ctx context.Context, records []models.KeyRecord) error {
	return v.records.PutMany(ctx, records)
}

func (v *Vault) RemoveAll(ctx context.Context) error {
	return v.records.RemoveAll(ctx)
}

func (v *Vault) recordFailedAttempt() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failedAttempts++
	if v.failedAttempts >= maxFailedAttempts {
		v.lockedUntil = v.now().Add(lockDuration)
		v.failedAttempts = 0
		v.log.Warn("password verification locked", "until", v.lockedUntil)
	}
}

// normalizePrivateKey maps a decrypted plaintext to the bare private seed.
// Format 0 plaintexts are the legacy 64-byte secret key, private seed
// followed by public key.
func normalizePrivateKey(plaintext []byte, formatVersion int) ([]byte, error) {
	if formatVersion >= models.KeyRecordFormatCurrent {
		return plaintext, nil
	}
	if len(plaintext) != legacySecretKeySize {
		return nil, fmt.Errorf("%w: legacy secret key has %d bytes", ErrMalformedData, len(plaintext))
	}
	return plaintext[:privateKeySize], nil
}
