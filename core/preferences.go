package core

import (
	"context"
	"fmt"
	"strings"
)

const (
	accountPreferencePrefix = "accountPreference:"
	sessionPreferencePrefix = "sessionPreference:"
)

type preferenceSource int

const (
	preferenceNone preferenceSource = iota
	preferenceFromAccount
	preferenceFromSession
)

// preferenceHit is the tagged result of the two-tier preference lookup. A
// session-preference hit carries needsMigration so the caller can promote it
// into an account preference once the session resolves to an account label.
type preferenceHit struct {
	source         preferenceSource
	accountLabel   string
	sessionID      string
	needsMigration bool
}

// preferenceStore persists which account an extension should receive per
// provider, plus the legacy per-scope session preference it supersedes.
type preferenceStore struct {
	state  StateStore
	logger Logger
}

func newPreferenceStore(state StateStore, logger Logger) *preferenceStore {
	return &preferenceStore{state: state, logger: logger}
}

func accountPreferenceKey(extensionID, providerID string) string {
	return accountPreferencePrefix + ExtensionKey(extensionID) + ":" + strings.TrimSpace(providerID)
}

func sessionPreferenceKey(providerID, extensionID string, scopes []string) string {
	return sessionPreferencePrefix + strings.TrimSpace(providerID) + ":" + ExtensionKey(extensionID) + ":" + ScopesKey(scopes)
}

// lookup resolves the stored preference for (extension, provider, scopes).
// Account preferences win over the legacy session preference.
func (p *preferenceStore) lookup(ctx context.Context, extensionID, providerID string, scopes []string) (preferenceHit, error) {
	if p == nil || p.state == nil {
		return preferenceHit{}, fmt.Errorf("core: preference store is not configured")
	}

	label, ok, err := p.state.Get(ctx, accountPreferenceKey(extensionID, providerID))
	if err != nil {
		return preferenceHit{}, err
	}
	if ok && strings.TrimSpace(label) != "" {
		return preferenceHit{source: preferenceFromAccount, accountLabel: label}, nil
	}

	sessionID, ok, err := p.state.Get(ctx, sessionPreferenceKey(providerID, extensionID, scopes))
	if err != nil {
		return preferenceHit{}, err
	}
	if ok && strings.TrimSpace(sessionID) != "" {
		return preferenceHit{source: preferenceFromSession, sessionID: sessionID, needsMigration: true}, nil
	}
	return preferenceHit{source: preferenceNone}, nil
}

func (p *preferenceStore) setAccount(ctx context.Context, extensionID, providerID, accountLabel string) error {
	if strings.TrimSpace(accountLabel) == "" {
		return fmt.Errorf("core: account label is required")
	}
	return p.state.Store(ctx, accountPreferenceKey(extensionID, providerID), accountLabel)
}

// migrate promotes a legacy session preference into an account preference
// and retires the old record.
func (p *preferenceStore) migrate(ctx context.Context, extensionID, providerID string, scopes []string, accountLabel string) {
	if err := p.setAccount(ctx, extensionID, providerID, accountLabel); err != nil {
		p.logger.Warn("session preference migration failed",
			"provider_id", providerID, "extension_id", extensionID, "error", err)
		return
	}
	if err := p.state.Remove(ctx, sessionPreferenceKey(providerID, extensionID, scopes)); err != nil {
		p.logger.Warn("legacy session preference removal failed",
			"provider_id", providerID, "extension_id", extensionID, "error", err)
	}
}

// clear drops both preference tiers for (extension, provider, scopes).
func (p *preferenceStore) clear(ctx context.Context, extensionID, providerID string, scopes []string) error {
	if p == nil || p.state == nil {
		return fmt.Errorf("core: preference store is not configured")
	}
	if err := p.state.Remove(ctx, accountPreferenceKey(extensionID, providerID)); err != nil {
		return err
	}
	return p.state.Remove(ctx, sessionPreferenceKey(providerID, extensionID, scopes))
}

// clearAccountLabel removes account preferences pointing at the given label
// for every extension key we can observe. StateStore has no scan surface, so
// the broker calls this with the extensions it knows touched the account.
func (p *preferenceStore) clearAccountLabel(ctx context.Context, extensionIDs []string, providerID, accountLabel string) {
	for _, extensionID := range extensionIDs {
		key := accountPreferenceKey(extensionID, providerID)
		stored, ok, err := p.state.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		if stored == accountLabel {
			if err := p.state.Remove(ctx, key); err != nil {
				p.logger.Warn("account preference cleanup failed",
					"provider_id", providerID, "extension_id", extensionID, "error", err)
			}
		}
	}
}
