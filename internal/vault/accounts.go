package vault

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"

	"lumen-wallet/go-core/internal/vaultcrypt"
	"lumen-wallet/go-core/pkg/models"
)

var (
	ErrInvalidMnemonic  = errors.New("invalid mnemonic")
	ErrInvalidSecretKey = errors.New("invalid secret key")
)

const hkdfInfoAccount = "lumen/wallet/account/v1"

// GenerateMnemonic produces a fresh 24-word recovery phrase.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// KeypairFromMnemonic derives the account keypair at index from a
// recovery phrase. Derivation is deterministic: the same phrase and index
// always yield the same keypair.
func KeypairFromMnemonic(mnemonic string, index uint32) (ed25519.PublicKey, []byte, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, nil, ErrInvalidMnemonic
	}
	seedBytes := bip39.NewSeed(mnemonic, "")
	info := fmt.Sprintf("%s/%d", hkdfInfoAccount, index)
	reader := hkdf.New(sha256.New, seedBytes, nil, []byte(info))
	accountSeed := make([]byte, privateKeySize)
	if _, err := io.ReadFull(reader, accountSeed); err != nil {
		return nil, nil, err
	}
	priv := ed25519.NewKeyFromSeed(accountSeed)
	return priv.Public().(ed25519.PublicKey), accountSeed, nil
}

// KeypairFromSecretKey imports a legacy 64-byte secret key (private seed
// followed by public key), validating that the halves belong together.
func KeypairFromSecretKey(secret []byte) (ed25519.PublicKey, []byte, error) {
	if len(secret) != legacySecretKeySize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrInvalidSecretKey, len(secret))
	}
	seed := append([]byte(nil), secret[:privateKeySize]...)
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	if !pub.Equal(ed25519.PublicKey(secret[privateKeySize:])) {
		return nil, nil, fmt.Errorf("%w: public key half does not match private seed", ErrInvalidSecretKey)
	}
	return pub, seed, nil
}

// Address renders a public key in its display form.
func Address(publicKey []byte) string {
	return base58.Encode(publicKey)
}

// ImportAccount encrypts a private seed under creds and persists the
// record at the current format.
func (v *Vault) ImportAccount(ctx context.Context, publicKey ed25519.PublicKey, privateSeed []byte, creds vaultcrypt.Credentials) (models.KeyRecord, error) {
	encrypted, err := vaultcrypt.Encrypt(creds, privateSeed)
	if err != nil {
		return models.KeyRecord{}, err
	}
	now := v.now().UTC()
	record := models.KeyRecord{
		PublicKey:           append([]byte(nil), publicKey...),
		EncryptedPrivateKey: encrypted,
		EncryptionMethod:    creds.Method,
		EncryptionRef:       creds.Ref(),
		FormatVersion:       models.KeyRecordFormatCurrent,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := v.records.Put(ctx, record); err != nil {
		return models.KeyRecord{}, err
	}
	v.log.Info("account imported", "address", Address(publicKey), "method", creds.Method)
	return record, nil
}

// DeleteAccount removes the record for publicKey. Deleting an unknown
// account is a no-op.
func (v *Vault) DeleteAccount(ctx context.Context, publicKey []byte) error {
	return v.records.Delete(ctx, publicKey)
}
