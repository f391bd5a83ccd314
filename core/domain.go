package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidOptions                 = errors.New("core: mutually exclusive session options")
	ErrProviderNotFound               = errors.New("core: provider not registered")
	ErrActivationTimeout              = errors.New("core: provider activation timed out")
	ErrConsentDenied                  = errors.New("core: user declined consent")
	ErrAuthorizationServerUnsupported = errors.New("core: authorization server not supported by provider")
)

// SessionAccount identifies the account a session was issued for. Label is
// the user-visible key used by preferences and the access ledger.
type SessionAccount struct {
	ID    string
	Label string
}

// Session is the credential bundle a provider hands back. The broker treats
// AccessToken as opaque and never persists it outside the dynamic-provider
// token path.
type Session struct {
	ID          string
	AccessToken string
	Account     SessionAccount
	Scopes      []string
}

// SessionOptions shape a GetSession request. CreateIfNone, ForceNewSession
// and Silent are pairwise mutually exclusive.
type SessionOptions struct {
	CreateIfNone           bool
	ForceNewSession        bool
	Silent                 bool
	ClearSessionPreference bool
	Account                string
	AuthorizationServer    string
}

func (o SessionOptions) Validate() error {
	set := 0
	for _, flag := range []bool{o.CreateIfNone, o.ForceNewSession, o.Silent} {
		if flag {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("%w: createIfNone=%t forceNewSession=%t silent=%t",
			ErrInvalidOptions, o.CreateIfNone, o.ForceNewSession, o.Silent)
	}
	return nil
}

// ProviderSessionOptions narrow a provider's GetSessions call.
type ProviderSessionOptions struct {
	Account             *SessionAccount
	AuthorizationServer string
}

// CreateSessionOptions shape a provider's CreateSession call.
type CreateSessionOptions struct {
	ActivateImmediate   bool
	Account             *SessionAccount
	AuthorizationServer string
}

// DeclaredProvider is manifest-sourced metadata for a provider that may not
// have activated yet. Its lifecycle is independent from the live instance.
type DeclaredProvider struct {
	ID                       string
	Label                    string
	AuthorizationServerGlobs []string
}

// AccessEntry records one extension's grant for a (provider, account) pair.
// Trusted entries are derived from static configuration and never persisted.
type AccessEntry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Allowed bool   `json:"allowed"`
	Trusted bool   `json:"trusted,omitempty"`
}

// AccessJudgment is the tri-state answer of the access ledger: an extension
// the user never decided on is unknown, not denied.
type AccessJudgment int

const (
	AccessUnknown AccessJudgment = iota
	AccessAllowed
	AccessDenied
)

// UsageRecord tracks one extension's last use of a (provider, account) pair.
type UsageRecord struct {
	ExtensionID   string   `json:"extensionId"`
	ExtensionName string   `json:"extensionName"`
	Scopes        []string `json:"scopes,omitempty"`
	LastUsed      int64    `json:"lastUsed"`
}

// DynamicProviderInfo is the non-secret metadata kept for providers created
// from an authorization-server URL alone.
type DynamicProviderInfo struct {
	ProviderID          string `json:"providerId"`
	Label               string `json:"label"`
	AuthorizationServer string `json:"authorizationServer,omitempty"`
	// Issuer is the legacy field AuthorizationServer replaced; kept so old
	// records migrate on read.
	Issuer   string `json:"issuer,omitempty"`
	ClientID string `json:"clientId"`
}

// ClientCredential is the OAuth client registration stored in secret storage.
type ClientCredential struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

// TokenEntry is a single stored authorization token. The broker only ever
// inspects created_at; everything else belongs to the provider.
type TokenEntry map[string]any

// CreatedAt returns the numeric created_at field, if present.
func (e TokenEntry) CreatedAt() (float64, bool) {
	raw, ok := e["created_at"]
	if !ok {
		return 0, false
	}
	switch value := raw.(type) {
	case float64:
		return value, true
	case int64:
		return float64(value), true
	case int:
		return float64(value), true
	default:
		return 0, false
	}
}

// TokenSet is the full token collection for one (provider, client) pair.
type TokenSet []TokenEntry

// TokenValidator judges whether a stored token entry still has the shape the
// owning provider expects. A nil validator accepts everything.
type TokenValidator func(TokenEntry) bool

// ExtensionKey normalizes an extension identifier for ledger and preference
// lookups.
func ExtensionKey(extensionID string) string {
	return strings.ToLower(strings.TrimSpace(extensionID))
}

// ScopesKey is the canonical string form of a scope list, used for legacy
// session-preference keys and telemetry dedup.
func ScopesKey(scopes []string) string {
	if len(scopes) == 0 {
		return ""
	}
	sorted := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		trimmed := strings.TrimSpace(scope)
		if trimmed != "" {
			sorted = append(sorted, trimmed)
		}
	}
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}

func nowUnixMilli() int64 {
	return time.Now().UTC().UnixMilli()
}

func cloneSession(session Session) Session {
	cloned := session
	cloned.Scopes = append([]string(nil), session.Scopes...)
	return cloned
}

func cloneSessions(sessions []Session) []Session {
	if len(sessions) == 0 {
		return nil
	}
	out := make([]Session, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, cloneSession(session))
	}
	return out
}

func copyAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(values))
	for key, value := range values {
		copied[key] = value
	}
	return copied
}
