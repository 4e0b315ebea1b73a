package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"lumen-wallet/go-core/internal/storage"
	"lumen-wallet/go-core/pkg/models"
)

const (
	keyRecordPrefix  = "vault/key/"
	credentialTagKey = "vault/credential_tag"
)

var (
	ErrNotFound      = errors.New("vault record not found")
	ErrMalformedData = errors.New("vault persisted data is malformed")
)

// RecordStore persists KeyRecords keyed by base58 public key. Each record
// is one JSON value, so the encrypted bytes, method, ref and format a
// record carries are always read and written as a unit.
type RecordStore struct {
	store storage.Store
}

func NewRecordStore(store storage.Store) *RecordStore {
	return &RecordStore{store: store}
}

func recordKey(publicKey []byte) string {
	return keyRecordPrefix + base58.Encode(publicKey)
}

func (s *RecordStore) Get(ctx context.Context, publicKey []byte) (models.KeyRecord, error) {
	raw, ok, err := s.store.Get(ctx, recordKey(publicKey))
	if err != nil {
		return models.KeyRecord{}, err
	}
	if !ok {
		return models.KeyRecord{}, ErrNotFound
	}
	var record models.KeyRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return models.KeyRecord{}, fmt.Errorf("%w: key record %s: %v", ErrMalformedData, base58.Encode(publicKey), err)
	}
	return record, nil
}

func (s *RecordStore) Put(ctx context.Context, record models.KeyRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, recordKey(record.PublicKey), raw)
}

// PutMany writes the batch through the store's atomic batch path. The
// store commits all records or none; the vault's bulk re-encryption
// depends on that.
func (s *RecordStore) PutMany(ctx context.Context, records []models.KeyRecord) error {
	values := make(map[string][]byte, len(records))
	for _, record := range records {
		raw, err := json.Marshal(record)
		if err != nil {
			return err
		}
		values[recordKey(record.PublicKey)] = raw
	}
	return s.store.SetMany(ctx, values)
}

func (s *RecordStore) Delete(ctx context.Context, publicKey []byte) error {
	return s.store.Remove(ctx, recordKey(publicKey))
}

func (s *RecordStore) All(ctx context.Context) ([]models.KeyRecord, error) {
	raw, err := s.store.GetAll(ctx, keyRecordPrefix)
	if err != nil {
		return nil, err
	}
	records := make([]models.KeyRecord, 0, len(raw))
	for key, value := range raw {
		var record models.KeyRecord
		if err := json.Unmarshal(value, &record); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedData, key, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *RecordStore) RemoveAll(ctx context.Context) error {
	raw, err := s.store.GetAll(ctx, keyRecordPrefix)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(raw)+1)
	for key := range raw {
		keys = append(keys, key)
	}
	keys = append(keys, credentialTagKey)
	return s.store.Remove(ctx, keys...)
}

func (s *RecordStore) Tag(ctx context.Context) (models.CredentialTag, error) {
	raw, ok, err := s.store.Get(ctx, credentialTagKey)
	if err != nil {
		return models.CredentialTag{}, err
	}
	if !ok {
		return models.CredentialTag{}, ErrNotFound
	}
	var tag models.CredentialTag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return models.CredentialTag{}, fmt.Errorf("%w: credential tag: %v", ErrMalformedData, err)
	}
	return tag, nil
}

func (s *RecordStore) PutTag(ctx context.Context, tag models.CredentialTag) error {
	raw, err := json.Marshal(tag)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, credentialTagKey, raw)
}
