package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-authsessions/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// KeyMetadataProvider exposes the key id and version a SecretProvider
// currently encrypts with, recorded alongside each ciphertext row.
type KeyMetadataProvider interface {
	Metadata() (string, int)
}

// SecretStore persists secrets in auth_secret_entries, envelope-encrypting
// every value through the configured SecretProvider. Writes and deletes are
// announced on the change stream so dynamic-provider token tracking works
// over SQL persistence the same way it does over host secret storage.
type SecretStore struct {
	db      *bun.DB
	repo    repository.Repository[*secretRecord]
	secrets core.SecretProvider
	changes *core.EventStream[string]
}

func NewSecretStore(db *bun.DB, secrets core.SecretProvider) (*SecretStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if secrets == nil {
		return nil, fmt.Errorf("sqlstore: secret provider is required")
	}
	repo := repository.NewRepository[*secretRecord](db, secretHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid secret repository wiring: %w", err)
		}
	}
	return &SecretStore{
		db:      db,
		repo:    repo,
		secrets: secrets,
		changes: core.NewEventStream[string](),
	}, nil
}

func (s *SecretStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: secret store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, fmt.Errorf("sqlstore: secret key is required")
	}

	record := &secretRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.entry_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}

	plaintext, err := s.secrets.Decrypt(ctx, record.Ciphertext)
	if err != nil {
		return "", false, fmt.Errorf("sqlstore: decrypt secret %q: %w", key, err)
	}
	return string(plaintext), true, nil
}

func (s *SecretStore) Set(ctx context.Context, key string, value string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: secret store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: secret key is required")
	}

	ciphertext, err := s.secrets.Encrypt(ctx, []byte(value))
	if err != nil {
		return fmt.Errorf("sqlstore: encrypt secret %q: %w", key, err)
	}
	keyID, keyVersion := s.keyMetadata()
	now := time.Now().UTC()

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &secretRecord{}
		findErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.entry_key = ?", key).
			Limit(1).
			Scan(ctx)
		if findErr != nil && findErr != sql.ErrNoRows {
			return findErr
		}
		if findErr == sql.ErrNoRows {
			record = &secretRecord{
				ID:         uuid.NewString(),
				Key:        key,
				Ciphertext: ciphertext,
				KeyID:      keyID,
				KeyVersion: keyVersion,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			return insertErr
		}

		record.Ciphertext = ciphertext
		record.KeyID = keyID
		record.KeyVersion = keyVersion
		record.UpdatedAt = now
		_, updateErr := tx.NewUpdate().
			Model(record).
			Column("ciphertext", "key_id", "key_version", "updated_at").
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
	if err != nil {
		return err
	}

	s.changes.Emit(key)
	return nil
}

func (s *SecretStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: secret store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: secret key is required")
	}

	result, err := s.db.NewDelete().
		Model((*secretRecord)(nil)).
		Where("entry_key = ?", key).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, raErr := result.RowsAffected(); raErr == nil && affected > 0 {
		s.changes.Emit(key)
	}
	return nil
}

func (s *SecretStore) OnDidChangeSecret(handler func(key string)) (cancel func()) {
	return s.changes.Subscribe(handler)
}

func (s *SecretStore) keyMetadata() (string, int) {
	if provider, ok := s.secrets.(KeyMetadataProvider); ok {
		return provider.Metadata()
	}
	return "", 0
}
