package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-authsessions/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL-backed state and secret stores from a
// persistence client or a raw bun handle.
type RepositoryFactory struct {
	db      *bun.DB
	secrets core.SecretProvider

	stateStore  *StateStore
	secretStore *SecretStore
}

func NewRepositoryFactory(secrets core.SecretProvider) *RepositoryFactory {
	return &RepositoryFactory{secrets: secrets}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, secrets core.SecretProvider) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(secrets)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, secrets core.SecretProvider) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(secrets)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.stateStore != nil && f.secretStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) StateStore() core.StateStore {
	if f == nil {
		return nil
	}
	return f.stateStore
}

func (f *RepositoryFactory) SecretStore() core.SecretStore {
	if f == nil {
		return nil
	}
	return f.secretStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	stateStore, err := NewStateStore(f.db)
	if err != nil {
		return err
	}
	f.stateStore = stateStore

	secretStore, err := NewSecretStore(f.db, f.secrets)
	if err != nil {
		return err
	}
	f.secretStore = secretStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
