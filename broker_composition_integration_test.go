package authsessions_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	authsessions "github.com/goliatone/go-authsessions"
	authcommand "github.com/goliatone/go-authsessions/command"
	"github.com/goliatone/go-authsessions/core"
	authmigrations "github.com/goliatone/go-authsessions/migrations"
	authquery "github.com/goliatone/go-authsessions/query"
	"github.com/goliatone/go-authsessions/security"
	sqlstore "github.com/goliatone/go-authsessions/store/sql"
	gocmd "github.com/goliatone/go-command"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Exercises the whole stack the way a host would compose it: sqlite-backed
// state and secret stores, the broker service on top, and the command/query
// facade driving it.
func TestBrokerComposition_SQLStoresThroughFacade(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newCompositionSQLiteClient(t)
	defer cleanup()

	secretProvider, err := security.NewAppKeySecretProviderFromString("composition-test-key")
	if err != nil {
		t.Fatalf("new secret provider: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, secretProvider)
	if err != nil {
		t.Fatalf("repository factory: %v", err)
	}

	registry := authsessions.NewProviderRegistry()
	provider := &compositionProvider{id: "github", account: core.SessionAccount{ID: "acct_1", Label: "octocat"}}
	if err := registry.Register(provider); err != nil {
		t.Fatalf("register provider: %v", err)
	}

	service, err := authsessions.NewService(authsessions.DefaultConfig(),
		authsessions.WithRegistry(registry),
		authsessions.WithStateStore(factory.StateStore()),
		authsessions.WithSecretStore(factory.SecretStore()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer service.Close()

	facade, err := authsessions.NewFacade(service)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	collector := gocmd.NewResult[*core.Session]()
	cmdCtx := gocmd.ContextWithResult(ctx, collector)
	if err := facade.Commands().CreateSession.Execute(cmdCtx, authcommand.CreateSessionMessage{
		Request: core.GetSessionRequest{
			ProviderID:    "github",
			Scopes:        []string{"repo"},
			ExtensionID:   "ext.copilot",
			ExtensionName: "Copilot",
		},
	}); err != nil {
		t.Fatalf("execute create session: %v", err)
	}
	created, ok := collector.Load()
	if !ok || created == nil || created.Account.Label != "octocat" {
		t.Fatalf("expected created session result, got %#v ok=%v", created, ok)
	}

	// The grant bookkeeping went through the SQL state store; the query side
	// must read it back.
	entries, err := facade.Queries().ListAllowedExtensions.Query(ctx, authquery.ListAllowedExtensionsMessage{
		ProviderID:   "github",
		AccountLabel: "octocat",
	})
	if err != nil {
		t.Fatalf("query allowed extensions: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "ext.copilot" || !entries[0].Allowed {
		t.Fatalf("unexpected allow-list: %#v", entries)
	}

	usages, err := facade.Queries().ListAccountUsages.Query(ctx, authquery.ListAccountUsagesMessage{
		ProviderID:   "github",
		AccountLabel: "octocat",
	})
	if err != nil {
		t.Fatalf("query usages: %v", err)
	}
	if len(usages) != 1 || usages[0].ExtensionID != "ext.copilot" {
		t.Fatalf("unexpected usages: %#v", usages)
	}

	accounts, err := facade.Queries().GetAccounts.Query(ctx, authquery.GetAccountsMessage{ProviderID: "github"})
	if err != nil {
		t.Fatalf("query accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Label != "octocat" {
		t.Fatalf("unexpected accounts: %#v", accounts)
	}

	// A second broker over the same database sees the persisted grant and
	// reuses the session without another consent round.
	second, err := authsessions.NewService(authsessions.DefaultConfig(),
		authsessions.WithRegistry(registry),
		authsessions.WithStateStore(factory.StateStore()),
		authsessions.WithSecretStore(factory.SecretStore()),
	)
	if err != nil {
		t.Fatalf("second service: %v", err)
	}
	defer second.Close()

	reused, err := second.GetSession(ctx, core.GetSessionRequest{
		ProviderID:    "github",
		Scopes:        []string{"repo"},
		ExtensionID:   "ext.copilot",
		ExtensionName: "Copilot",
		Options:       core.SessionOptions{Silent: true},
	})
	if err != nil {
		t.Fatalf("silent reuse on second broker: %v", err)
	}
	if reused == nil || reused.ID != created.ID {
		t.Fatalf("expected persisted grant to survive restart, got %#v", reused)
	}
}

type compositionProvider struct {
	id      string
	account core.SessionAccount

	mu       sync.Mutex
	sessions []core.Session
	nextID   int
}

func (p *compositionProvider) ID() string                     { return p.id }
func (p *compositionProvider) Label() string                  { return p.id }
func (p *compositionProvider) SupportsMultipleAccounts() bool { return false }
func (p *compositionProvider) AuthorizationServers() []string { return nil }

func (p *compositionProvider) GetSessions(_ context.Context, scopes []string, _ core.ProviderSessionOptions) ([]core.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := core.ScopesKey(scopes)
	out := make([]core.Session, 0, len(p.sessions))
	for _, session := range p.sessions {
		if len(scopes) > 0 && core.ScopesKey(session.Scopes) != key {
			continue
		}
		out = append(out, session)
	}
	return out, nil
}

func (p *compositionProvider) CreateSession(_ context.Context, scopes []string, _ core.CreateSessionOptions) (core.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	session := core.Session{
		ID:          fmt.Sprintf("%s-session-%d", p.id, p.nextID),
		AccessToken: fmt.Sprintf("token-%d", p.nextID),
		Account:     p.account,
		Scopes:      append([]string(nil), scopes...),
	}
	p.sessions = append(p.sessions, session)
	return session, nil
}

func (p *compositionProvider) RemoveSession(_ context.Context, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for idx, session := range p.sessions {
		if session.ID == sessionID {
			p.sessions = append(p.sessions[:idx], p.sessions[idx+1:]...)
			return nil
		}
	}
	return fmt.Errorf("composition provider: unknown session %s", sessionID)
}

type compositionPersistenceConfig struct {
	driver string
	server string
}

func (c compositionPersistenceConfig) GetDebug() bool                { return false }
func (c compositionPersistenceConfig) GetDriver() string             { return c.driver }
func (c compositionPersistenceConfig) GetServer() string             { return c.server }
func (c compositionPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c compositionPersistenceConfig) GetOtelIdentifier() string     { return "go-authsessions-tests" }

func newCompositionSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:authsessions-composition-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := compositionPersistenceConfig{driver: "sqlite3", server: dsn}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = authmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != authmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, authmigrations.WithValidationTargets(authmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("run migrations: %v", err)
	}

	return client, func() { _ = client.Close() }
}
