package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

// Provider is a pluggable identity source. Implementations live in
// extensions or are materialized by a dynamic-provider delegate; the broker
// never wraps or retries their errors.
type Provider interface {
	ID() string
	Label() string
	SupportsMultipleAccounts() bool
	AuthorizationServers() []string

	GetSessions(ctx context.Context, scopes []string, opts ProviderSessionOptions) ([]Session, error)
	CreateSession(ctx context.Context, scopes []string, opts CreateSessionOptions) (Session, error)
	RemoveSession(ctx context.Context, sessionID string) error
}

type ActivationKind int

const (
	ActivationNormal ActivationKind = iota
	ActivationImmediate
)

// Activator triggers host-side extension activation for an event such as
// "onAuthenticationRequest:<providerID>". The provider is expected to appear
// in the registry as a side effect, possibly from another process.
type Activator interface {
	ActivateByEvent(ctx context.Context, event string, kind ActivationKind) error
}

// ConsentRequest describes the modal confirmation shown before an extension
// may use (or recreate) a session.
type ConsentRequest struct {
	ProviderID    string
	ProviderLabel string
	ExtensionID   string
	ExtensionName string
	Scopes        []string
	// Recreate is set when the prompt replaces existing sessions rather than
	// creating a first one.
	Recreate     bool
	AccountLabel string
}

// SessionSelectionRequest asks the user to pick among multiple reusable
// sessions for a multi-account provider.
type SessionSelectionRequest struct {
	ProviderID    string
	ProviderLabel string
	ExtensionName string
	Scopes        []string
	Sessions      []Session
}

// AccountMismatchRequest is shown when a created session landed on a
// different account than the one requested.
type AccountMismatchRequest struct {
	ProviderLabel string
	ExtensionName string
	Requested     string
	Received      string
}

type MismatchChoice int

const (
	// MismatchKeep accepts the session despite the account difference.
	MismatchKeep MismatchChoice = iota
	// MismatchRetry loops back into another CreateSession attempt.
	MismatchRetry
)

// AccessPromptRequest backs the non-blocking "request access" flow fired
// when sessions exist but the extension has no grant yet.
type AccessPromptRequest struct {
	ProviderID    string
	ProviderLabel string
	ExtensionID   string
	ExtensionName string
	Scopes        []string
	Sessions      []Session
}

// NewSessionPromptRequest backs the non-blocking "sign in" flow fired when
// no sessions exist and the caller did not ask to create one.
type NewSessionPromptRequest struct {
	ProviderID    string
	ProviderLabel string
	ExtensionID   string
	ExtensionName string
	Scopes        []string
}

// UserInterface is the consent/selection collaborator. Blocking calls return
// the user's decision; Request* hooks are fire-and-forget and must not block
// the calling operation.
type UserInterface interface {
	ConfirmConsent(ctx context.Context, req ConsentRequest) (bool, error)
	SelectSession(ctx context.Context, req SessionSelectionRequest) (Session, error)
	ConfirmAccountMismatch(ctx context.Context, req AccountMismatchRequest) (MismatchChoice, error)
	RequestAccess(ctx context.Context, req AccessPromptRequest)
	RequestNewSession(ctx context.Context, req NewSessionPromptRequest)
	RequestClientRegistration(ctx context.Context, authorizationServer string) (ClientCredential, error)
}

// ClientRegistrar obtains OAuth client credentials for an authorization
// server that has none stored, typically by driving a dynamic client
// registration flow. UserInterface satisfies it.
type ClientRegistrar interface {
	RequestClientRegistration(ctx context.Context, authorizationServer string) (ClientCredential, error)
}

// StateStore is the host's non-secret key-value storage, application scoped.
// Absent keys report ok=false, not an error.
type StateStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Store(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
}

// SecretStore is the host's secure key-value storage. The change stream is
// global to the host, not scoped to this subsystem, so consumers must filter
// keys themselves.
type SecretStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	OnDidChangeSecret(handler func(key string)) (cancel func())
}

// DynamicProviderRequest carries everything a delegate needs to bring a
// provider up warm: previously registered client credentials and any cached
// token set for the derived provider id.
type DynamicProviderRequest struct {
	ProviderID          string
	AuthorizationServer string
	ServerMetadata      map[string]any
	Resource            string
	ClientCredential    *ClientCredential
	Tokens              TokenSet
}

// DynamicProviderDelegate creates a provider from an authorization-server
// URL. Returning a nil provider without error means the delegate opted out.
type DynamicProviderDelegate interface {
	CreateDynamicProvider(ctx context.Context, req DynamicProviderRequest) (Provider, error)
}

// Registry is the broker-facing surface of the provider registry.
type Registry interface {
	Register(provider Provider) error
	Unregister(providerID string, origin UnregisterOrigin) error
	Get(providerID string) (Provider, error)
	IsRegistered(providerID string) bool
	IsDeclared(providerID string) bool
	IsDynamic(providerID string) bool
	List() []Provider
	TryActivate(ctx context.Context, providerID string, immediate bool) (Provider, error)
}

// SecretProvider encrypts secret-store payloads before they reach
// persistence.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
