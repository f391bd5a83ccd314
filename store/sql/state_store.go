package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// StateStore persists the broker's non-secret key-value state in
// auth_state_entries. Values are opaque JSON blobs; key semantics live with
// the callers.
type StateStore struct {
	db   *bun.DB
	repo repository.Repository[*stateRecord]
}

func NewStateStore(db *bun.DB) (*StateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*stateRecord](db, stateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid state repository wiring: %w", err)
		}
	}
	return &StateStore{db: db, repo: repo}, nil
}

func (s *StateStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: state store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, fmt.Errorf("sqlstore: state key is required")
	}

	record := &stateRecord{}
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
	return record.Value, true, nil
}

func (s *StateStore) Store(ctx context.Context, key string, value string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: state store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: state key is required")
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &stateRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.entry_key = ?", key).
			Limit(1).
			Scan(ctx)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if err == sql.ErrNoRows {
			record = &stateRecord{
				ID:        uuid.NewString(),
				Key:       key,
				Value:     value,
				CreatedAt: now,
				UpdatedAt: now,
			}
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			return insertErr
		}

		record.Value = value
		record.UpdatedAt = now
		_, updateErr := tx.NewUpdate().
			Model(record).
			Column("entry_value", "updated_at").
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func (s *StateStore) Remove(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: state store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: state key is required")
	}
	_, err := s.db.NewDelete().
		Model((*stateRecord)(nil)).
		Where("entry_key = ?", key).
		Exec(ctx)
	return err
}
