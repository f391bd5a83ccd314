package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type stateRecord struct {
	bun.BaseModel `bun:"table:auth_state_entries,alias:ase"`

	ID        string    `bun:"id,pk"`
	Key       string    `bun:"entry_key,notnull"`
	Value     string    `bun:"entry_value,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type secretRecord struct {
	bun.BaseModel `bun:"table:auth_secret_entries,alias:asce"`

	ID         string    `bun:"id,pk"`
	Key        string    `bun:"entry_key,notnull"`
	Ciphertext []byte    `bun:"ciphertext,notnull"`
	KeyID      string    `bun:"key_id,notnull"`
	KeyVersion int       `bun:"key_version,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
