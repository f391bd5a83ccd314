package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

const (
	dynamicProvidersStateKey      = "dynamicAuthProviders"
	clientRegistrationSecretScope = "dynamicAuthProvider:clientRegistration:"
)

// tokenSecretKey is both the secret-store key for a provider's token set and
// the correlation payload the generic secret-change stream carries. Field
// order matters: the marshalled form is the literal storage key.
type tokenSecretKey struct {
	IsDynamicAuthProvider bool   `json:"isDynamicAuthProvider"`
	AuthProviderID        string `json:"authProviderId"`
	ClientID              string `json:"clientId"`
}

func encodeTokenSecretKey(authProviderID, clientID string) (string, error) {
	encoded, err := json.Marshal(tokenSecretKey{
		IsDynamicAuthProvider: true,
		AuthProviderID:        strings.TrimSpace(authProviderID),
		ClientID:              strings.TrimSpace(clientID),
	})
	if err != nil {
		return "", fmt.Errorf("core: encode token secret key: %w", err)
	}
	return string(encoded), nil
}

func clientRegistrationKey(providerID string) string {
	return clientRegistrationSecretScope + strings.TrimSpace(providerID)
}

// DynamicProviderStore persists OAuth client registrations and token sets
// for providers created at runtime from an authorization-server URL, and
// re-emits the host's generic secret-change stream as typed token events.
type DynamicProviderStore struct {
	state     StateStore
	secrets   SecretStore
	logger    Logger
	validator TokenValidator

	tokenChanges *EventStream[TokenChangeEvent]

	queue     chan func()
	closeOnce sync.Once
	done      chan struct{}
	cancelSub func()
}

func NewDynamicProviderStore(state StateStore, secrets SecretStore, validator TokenValidator, logger Logger) *DynamicProviderStore {
	store := &DynamicProviderStore{
		state:        state,
		secrets:      secrets,
		logger:       logger,
		validator:    validator,
		tokenChanges: NewEventStream[TokenChangeEvent](),
		queue:        make(chan func(), 128),
		done:         make(chan struct{}),
	}

	// Single worker: overlapping secret-store notifications must not
	// interleave reads and emits for the same provider.
	go store.run()
	if secrets != nil {
		store.cancelSub = secrets.OnDidChangeSecret(store.handleSecretChange)
	}
	return store
}

func (s *DynamicProviderStore) run() {
	for {
		select {
		case task := <-s.queue:
			task()
		case <-s.done:
			return
		}
	}
}

// Close detaches from the secret-change stream and stops the worker.
func (s *DynamicProviderStore) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.cancelSub != nil {
			s.cancelSub()
		}
		close(s.done)
	})
}

// OnTokenChange subscribes to typed token-set changes.
func (s *DynamicProviderStore) OnTokenChange(handler func(TokenChangeEvent)) (cancel func()) {
	return s.tokenChanges.Subscribe(handler)
}

// handleSecretChange speculatively parses every changed secret key; only
// keys matching the token-set shape are acted on, the rest of the host's
// secret traffic is ignored.
func (s *DynamicProviderStore) handleSecretChange(key string) {
	var parsed tokenSecretKey
	if err := json.Unmarshal([]byte(key), &parsed); err != nil {
		return
	}
	if !parsed.IsDynamicAuthProvider || parsed.AuthProviderID == "" || parsed.ClientID == "" {
		return
	}

	task := func() {
		tokens, err := s.SessionsForDynamicProvider(context.Background(), parsed.AuthProviderID, parsed.ClientID)
		if err != nil {
			s.logger.Warn("token re-read after secret change failed",
				"provider_id", parsed.AuthProviderID, "error", err)
			return
		}
		s.tokenChanges.Emit(TokenChangeEvent{
			AuthProviderID: parsed.AuthProviderID,
			ClientID:       parsed.ClientID,
			Tokens:         tokens,
		})
	}

	select {
	case s.queue <- task:
	case <-s.done:
	}
}

// ClientRegistration reads the stored client credential for a provider. A
// corrupt secret record is deleted; the legacy metadata record's clientId is
// the fallback.
func (s *DynamicProviderStore) ClientRegistration(ctx context.Context, providerID string) (*ClientCredential, error) {
	if s == nil || s.secrets == nil {
		return nil, fmt.Errorf("core: dynamic provider store is not configured")
	}
	key := clientRegistrationKey(providerID)
	raw, ok, err := s.secrets.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		var credential ClientCredential
		if err := json.Unmarshal([]byte(raw), &credential); err == nil && strings.TrimSpace(credential.ClientID) != "" {
			return &credential, nil
		}
		s.logger.Warn("corrupt client registration purged", "provider_id", providerID)
		if deleteErr := s.secrets.Delete(ctx, key); deleteErr != nil {
			return nil, deleteErr
		}
	}

	infos, err := s.InteractedProviders(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.ProviderID == strings.TrimSpace(providerID) && strings.TrimSpace(info.ClientID) != "" {
			return &ClientCredential{ClientID: info.ClientID}, nil
		}
	}
	return nil, nil
}

// StoreClientRegistration records the non-secret metadata for UI display and
// writes the credential pair to secret storage separately, keeping the
// secret surface minimal.
func (s *DynamicProviderStore) StoreClientRegistration(ctx context.Context, providerID, authorizationServer, clientID, clientSecret, label string) error {
	if s == nil || s.state == nil || s.secrets == nil {
		return fmt.Errorf("core: dynamic provider store is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	clientID = strings.TrimSpace(clientID)
	if providerID == "" || clientID == "" {
		return fmt.Errorf("core: provider id and client id are required")
	}

	infos, err := s.InteractedProviders(ctx)
	if err != nil {
		return err
	}
	found := false
	for idx := range infos {
		if infos[idx].ProviderID != providerID {
			continue
		}
		infos[idx].AuthorizationServer = normalizeServerURL(authorizationServer)
		infos[idx].ClientID = clientID
		if strings.TrimSpace(label) != "" {
			infos[idx].Label = label
		}
		found = true
		break
	}
	if !found {
		infos = append(infos, DynamicProviderInfo{
			ProviderID:          providerID,
			Label:               label,
			AuthorizationServer: normalizeServerURL(authorizationServer),
			ClientID:            clientID,
		})
	}
	if err := s.writeProviderInfos(ctx, infos); err != nil {
		return err
	}

	encoded, err := json.Marshal(ClientCredential{ClientID: clientID, ClientSecret: clientSecret})
	if err != nil {
		return fmt.Errorf("core: encode client registration: %w", err)
	}
	return s.secrets.Set(ctx, clientRegistrationKey(providerID), string(encoded))
}

// InteractedProviders lists every dynamic provider we have talked to,
// migrating legacy issuer fields on read.
func (s *DynamicProviderStore) InteractedProviders(ctx context.Context) ([]DynamicProviderInfo, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("core: dynamic provider store is not configured")
	}
	raw, ok, err := s.state.Get(ctx, dynamicProvidersStateKey)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var infos []DynamicProviderInfo
	if err := json.Unmarshal([]byte(raw), &infos); err != nil {
		s.logger.Warn("corrupt dynamic provider list purged", "error", err)
		if removeErr := s.state.Remove(ctx, dynamicProvidersStateKey); removeErr != nil {
			return nil, removeErr
		}
		return nil, nil
	}

	migrated := false
	for idx := range infos {
		if infos[idx].AuthorizationServer == "" && infos[idx].Issuer != "" {
			infos[idx].AuthorizationServer = infos[idx].Issuer
			infos[idx].Issuer = ""
			migrated = true
		}
	}
	if migrated {
		if err := s.writeProviderInfos(ctx, infos); err != nil {
			s.logger.Warn("dynamic provider issuer migration write failed", "error", err)
		}
	}
	return infos, nil
}

func (s *DynamicProviderStore) writeProviderInfos(ctx context.Context, infos []DynamicProviderInfo) error {
	encoded, err := json.Marshal(infos)
	if err != nil {
		return fmt.Errorf("core: encode dynamic provider list: %w", err)
	}
	return s.state.Store(ctx, dynamicProvidersStateKey, string(encoded))
}

// RemoveDynamicProvider deletes metadata, the token set for the known
// client, and the credential record.
func (s *DynamicProviderStore) RemoveDynamicProvider(ctx context.Context, providerID string) error {
	if s == nil || s.state == nil || s.secrets == nil {
		return fmt.Errorf("core: dynamic provider store is not configured")
	}
	providerID = strings.TrimSpace(providerID)

	infos, err := s.InteractedProviders(ctx)
	if err != nil {
		return err
	}
	clientID := ""
	remaining := make([]DynamicProviderInfo, 0, len(infos))
	for _, info := range infos {
		if info.ProviderID == providerID {
			clientID = info.ClientID
			continue
		}
		remaining = append(remaining, info)
	}
	if len(remaining) != len(infos) {
		if err := s.writeProviderInfos(ctx, remaining); err != nil {
			return err
		}
	}

	if clientID == "" {
		if credential, credErr := s.ClientRegistration(ctx, providerID); credErr == nil && credential != nil {
			clientID = credential.ClientID
		}
	}
	if clientID != "" {
		key, keyErr := encodeTokenSecretKey(providerID, clientID)
		if keyErr == nil {
			if err := s.secrets.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	return s.secrets.Delete(ctx, clientRegistrationKey(providerID))
}

// SessionsForDynamicProvider reads the stored token set. Any entry missing a
// numeric created_at or failing the provider's shape predicate invalidates
// the whole set: it is purged rather than served partially.
func (s *DynamicProviderStore) SessionsForDynamicProvider(ctx context.Context, authProviderID, clientID string) (TokenSet, error) {
	if s == nil || s.secrets == nil {
		return nil, fmt.Errorf("core: dynamic provider store is not configured")
	}
	key, err := encodeTokenSecretKey(authProviderID, clientID)
	if err != nil {
		return nil, err
	}
	raw, ok, err := s.secrets.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var tokens TokenSet
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		s.logger.Warn("corrupt token set purged", "provider_id", authProviderID)
		if deleteErr := s.secrets.Delete(ctx, key); deleteErr != nil {
			return nil, deleteErr
		}
		return nil, nil
	}
	for _, token := range tokens {
		if _, ok := token.CreatedAt(); !ok {
			return nil, s.purgeTokenSet(ctx, key, authProviderID)
		}
		if s.validator != nil && !s.validator(token) {
			return nil, s.purgeTokenSet(ctx, key, authProviderID)
		}
	}
	return tokens, nil
}

func (s *DynamicProviderStore) purgeTokenSet(ctx context.Context, key, authProviderID string) error {
	s.logger.Warn("invalid token set purged", "provider_id", authProviderID)
	return s.secrets.Delete(ctx, key)
}

// SetSessionsForDynamicProvider writes the token set verbatim.
func (s *DynamicProviderStore) SetSessionsForDynamicProvider(ctx context.Context, authProviderID, clientID string, tokens TokenSet) error {
	if s == nil || s.secrets == nil {
		return fmt.Errorf("core: dynamic provider store is not configured")
	}
	key, err := encodeTokenSecretKey(authProviderID, clientID)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("core: encode token set: %w", err)
	}
	return s.secrets.Set(ctx, key, string(encoded))
}
