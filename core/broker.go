package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// maxAccountMismatchRetries bounds the incorrect-account loop so a provider
// that keeps landing on the wrong account cannot prompt forever.
const maxAccountMismatchRetries = 5

// GetSessionRequest carries one extension's session request.
type GetSessionRequest struct {
	ProviderID    string
	Scopes        []string
	ExtensionID   string
	ExtensionName string
	Options       SessionOptions
}

// Service is the session broker: it resolves providers, applies the reuse
// policy, drives consent, and keeps the access ledger, preferences and usage
// history in sync with the sessions it hands out.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver

	registry     Registry
	stateStore   StateStore
	secretStore  SecretStore
	ui           UserInterface
	access       *AccessLedger
	usage        *UsageTracker
	preferences  *preferenceStore
	dynamicStore *DynamicProviderStore

	sessionChanges *EventStream[SessionChangeEvent]

	firstUseMu sync.Mutex
	firstUse   map[string]struct{}
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("authsessions", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("authsessions"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.stateStore == nil {
		builder.stateStore = NewMemoryStateStore()
	}
	if builder.secretStore == nil {
		builder.secretStore = NewMemorySecretStore()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	dynamicStore := builder.dynamicStore
	if dynamicStore == nil {
		dynamicStore = NewDynamicProviderStore(builder.stateStore, builder.secretStore, builder.tokenValidator, logger)
	}

	if builder.registry == nil {
		builder.registry = NewProviderRegistry(
			RegistryWithLogger(logger),
			RegistryWithMetrics(builder.metricsRecorder),
			RegistryWithActivator(builder.activator),
			RegistryWithActivationTimeout(time.Duration(finalConfig.ActivationTimeoutMS)*time.Millisecond),
			RegistryWithDynamicStore(dynamicStore),
			RegistryWithClientRegistrar(builder.userInterface),
		)
	}

	service := &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		registry:        builder.registry,
		stateStore:      builder.stateStore,
		secretStore:     builder.secretStore,
		ui:              builder.userInterface,
		access:          NewAccessLedger(builder.stateStore, finalConfig.Trusted, logger),
		preferences:     newPreferenceStore(builder.stateStore, logger),
		dynamicStore:    dynamicStore,
		sessionChanges:  NewEventStream[SessionChangeEvent](),
		firstUse:        make(map[string]struct{}),
	}

	enumerator := builder.enumerator
	if enumerator == nil {
		enumerator = service
	}
	service.usage = NewUsageTracker(builder.stateStore, enumerator, logger)

	return service, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

func (s *Service) Config() Config { return s.config }

func (s *Service) Registry() Registry { return s.registry }

func (s *Service) AccessLedger() *AccessLedger { return s.access }

func (s *Service) UsageTracker() *UsageTracker { return s.usage }

func (s *Service) DynamicProviders() *DynamicProviderStore { return s.dynamicStore }

func (s *Service) MapError(err error) error { return mapBuildError(s.errorMapper, err) }

// OnSessionsChanged subscribes to session add/remove/change fan-out.
func (s *Service) OnSessionsChanged(handler func(SessionChangeEvent)) (cancel func()) {
	return s.sessionChanges.Subscribe(handler)
}

// Close releases the dynamic-provider token subscription.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.dynamicStore.Close()
}

// EnumerateAccounts lists every (provider, account) pair visible through the
// registry. It backs the usage tracker's cache warm-up.
func (s *Service) EnumerateAccounts(ctx context.Context) ([]ProviderAccount, error) {
	var out []ProviderAccount
	for _, provider := range s.registry.List() {
		sessions, err := provider.GetSessions(ctx, nil, ProviderSessionOptions{})
		if err != nil {
			s.logger.Warn("account enumeration skipped provider",
				"provider_id", provider.ID(), "error", err)
			continue
		}
		seen := make(map[string]struct{}, len(sessions))
		for _, session := range sessions {
			label := session.Account.Label
			if _, dup := seen[label]; dup || label == "" {
				continue
			}
			seen[label] = struct{}{}
			out = append(out, ProviderAccount{ProviderID: provider.ID(), AccountLabel: label})
		}
	}
	return out, nil
}

// GetAccounts returns the unique accounts across a provider's sessions, in
// first-seen order.
func (s *Service) GetAccounts(ctx context.Context, providerID string) ([]SessionAccount, error) {
	startedAt := time.Now()
	provider, err := s.resolveProvider(ctx, providerID, false)
	if err != nil {
		s.observeOperation(ctx, startedAt, "get_accounts", err, map[string]any{"provider_id": providerID})
		return nil, err
	}
	sessions, err := provider.GetSessions(ctx, nil, ProviderSessionOptions{})
	if err != nil {
		s.observeOperation(ctx, startedAt, "get_accounts", err, map[string]any{"provider_id": providerID})
		return nil, err
	}

	seen := make(map[string]struct{}, len(sessions))
	accounts := make([]SessionAccount, 0, len(sessions))
	for _, session := range sessions {
		if _, dup := seen[session.Account.Label]; dup {
			continue
		}
		seen[session.Account.Label] = struct{}{}
		accounts = append(accounts, session.Account)
	}
	s.observeOperation(ctx, startedAt, "get_accounts", nil, map[string]any{
		"provider_id": providerID,
		"accounts":    len(accounts),
	})
	return accounts, nil
}

// RemoveSession removes a provider session and clears the bookkeeping that
// pointed at it: when the removed session was the account's last one, the
// account's usage history and matching preferences go with it.
func (s *Service) RemoveSession(ctx context.Context, providerID, sessionID string) error {
	startedAt := time.Now()
	fields := map[string]any{"provider_id": providerID, "session_id": sessionID}

	provider, err := s.resolveProvider(ctx, providerID, false)
	if err != nil {
		s.observeOperation(ctx, startedAt, "remove_session", err, fields)
		return err
	}

	sessions, err := provider.GetSessions(ctx, nil, ProviderSessionOptions{})
	if err != nil {
		s.observeOperation(ctx, startedAt, "remove_session", err, fields)
		return err
	}
	var removed *Session
	for idx := range sessions {
		if sessions[idx].ID == sessionID {
			target := cloneSession(sessions[idx])
			removed = &target
			break
		}
	}

	if err := provider.RemoveSession(ctx, sessionID); err != nil {
		s.observeOperation(ctx, startedAt, "remove_session", err, fields)
		return err
	}

	if removed != nil {
		s.cleanupRemovedAccount(ctx, provider, *removed)
		s.sessionChanges.Emit(SessionChangeEvent{
			ProviderID: provider.ID(),
			Removed:    []Session{*removed},
		})
	}
	s.observeOperation(ctx, startedAt, "remove_session", nil, fields)
	return nil
}

// cleanupRemovedAccount drops usage history and account preferences when no
// session remains for the removed session's account.
func (s *Service) cleanupRemovedAccount(ctx context.Context, provider Provider, removed Session) {
	label := removed.Account.Label
	if label == "" {
		return
	}
	remaining, err := provider.GetSessions(ctx, nil, ProviderSessionOptions{})
	if err != nil {
		s.logger.Warn("post-removal session listing failed",
			"provider_id", provider.ID(), "error", err)
		return
	}
	for _, session := range remaining {
		if session.Account.Label == label {
			return
		}
	}

	usages, err := s.usage.ReadAccountUsages(ctx, provider.ID(), label)
	if err == nil {
		extensionIDs := make([]string, 0, len(usages))
		for _, record := range usages {
			extensionIDs = append(extensionIDs, record.ExtensionID)
		}
		s.preferences.clearAccountLabel(ctx, extensionIDs, provider.ID(), label)
	}
	if err := s.usage.RemoveAccountUsage(ctx, provider.ID(), label); err != nil {
		s.logger.Warn("usage cleanup failed",
			"provider_id", provider.ID(), "account", label, "error", err)
	}
}

// ClearSessionPreference drops both preference tiers for an extension's
// (provider, scopes) pairing without touching any session.
func (s *Service) ClearSessionPreference(ctx context.Context, extensionID, providerID string, scopes []string) error {
	startedAt := time.Now()
	err := s.preferences.clear(ctx, extensionID, providerID, scopes)
	s.observeOperation(ctx, startedAt, "clear_session_preference", err, map[string]any{
		"provider_id":  providerID,
		"extension_id": extensionID,
	})
	return err
}

// RemoveDynamicProvider unregisters a runtime-created provider and deletes
// its stored metadata, credential and token set. A provider that is declared
// metadata-only (never registered) still has its storage cleaned up.
func (s *Service) RemoveDynamicProvider(ctx context.Context, providerID string) error {
	startedAt := time.Now()
	fields := map[string]any{"provider_id": providerID}

	if s.registry.IsRegistered(providerID) {
		if err := s.registry.Unregister(providerID, UnregisterSelf); err != nil {
			s.observeOperation(ctx, startedAt, "remove_dynamic_provider", err, fields)
			return err
		}
	}
	err := s.dynamicStore.RemoveDynamicProvider(ctx, providerID)
	s.observeOperation(ctx, startedAt, "remove_dynamic_provider", err, fields)
	return err
}

// CreateSession creates a provider session directly, bypassing the reuse
// policy, and records the grant the way an interactive GetSession would.
func (s *Service) CreateSession(ctx context.Context, req GetSessionRequest) (*Session, error) {
	startedAt := time.Now()
	fields := map[string]any{"provider_id": req.ProviderID, "extension_id": req.ExtensionID}

	provider, err := s.resolveProvider(ctx, req.ProviderID, true)
	if err != nil {
		s.observeOperation(ctx, startedAt, "create_session", err, fields)
		return nil, err
	}

	created, err := provider.CreateSession(ctx, req.Scopes, CreateSessionOptions{
		ActivateImmediate:   true,
		Account:             accountRef(req.Options.Account),
		AuthorizationServer: req.Options.AuthorizationServer,
	})
	if err != nil {
		s.observeOperation(ctx, startedAt, "create_session", err, fields)
		return nil, err
	}

	s.recordGrantedSession(ctx, provider, req, created, true)
	s.observeOperation(ctx, startedAt, "create_session", nil, fields)
	result := cloneSession(created)
	return &result, nil
}

// GetSession answers an extension's session request. A nil session with a
// nil error is the passive "nothing available, nothing requested" outcome.
func (s *Service) GetSession(ctx context.Context, req GetSessionRequest) (*Session, error) {
	startedAt := time.Now()
	fields := map[string]any{
		"provider_id":  req.ProviderID,
		"extension_id": req.ExtensionID,
		"scopes":       ScopesKey(req.Scopes),
	}

	session, err := s.getSession(ctx, req)
	s.observeOperation(ctx, startedAt, "get_session", err, fields)
	return session, err
}

func (s *Service) getSession(ctx context.Context, req GetSessionRequest) (*Session, error) {
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}

	provider, err := s.resolveProvider(ctx, req.ProviderID, false)
	if err != nil {
		return nil, err
	}

	if server := normalizeServerURL(req.Options.AuthorizationServer); server != "" {
		if !providerSupportsServer(provider, server) {
			return nil, fmt.Errorf("%w: %s does not advertise %s",
				ErrAuthorizationServerUnsupported, provider.ID(), server)
		}
	}

	if req.Options.ClearSessionPreference {
		if err := s.preferences.clear(ctx, req.ExtensionID, provider.ID(), req.Scopes); err != nil {
			return nil, err
		}
	}

	sessions, err := provider.GetSessions(ctx, req.Scopes, ProviderSessionOptions{
		Account:             accountRef(req.Options.Account),
		AuthorizationServer: req.Options.AuthorizationServer,
	})
	if err != nil {
		return nil, err
	}

	preferred, targetLabel, err := s.resolvePreferredSession(ctx, req, provider, sessions)
	if err != nil {
		return nil, err
	}

	// Silent reuse applies to every branch except forced recreation.
	if !req.Options.ForceNewSession {
		if reused := s.silentReuse(ctx, req, provider, sessions, preferred); reused != nil {
			s.recordGrantedSession(ctx, provider, req, *reused, false)
			return reused, nil
		}
	}

	if req.Options.CreateIfNone || req.Options.ForceNewSession {
		return s.interactiveSession(ctx, req, provider, sessions, preferred, targetLabel)
	}
	if granted := s.opportunisticGrant(ctx, req, provider, sessions, preferred); granted != nil {
		return granted, nil
	}
	if req.Options.Silent {
		return nil, nil
	}
	s.nudgeForAccess(ctx, req, provider, sessions)
	return nil, nil
}

// resolveProvider returns the live provider, activating a declared one on
// demand. An id that is neither registered nor declared fails immediately
// rather than waiting out the activation timeout.
func (s *Service) resolveProvider(ctx context.Context, providerID string, immediate bool) (Provider, error) {
	id := strings.TrimSpace(providerID)
	if provider, err := s.registry.Get(id); err == nil {
		return provider, nil
	}

	if !s.registry.IsDeclared(id) {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return s.registry.TryActivate(ctx, id, immediate)
}

func providerSupportsServer(provider Provider, server string) bool {
	for _, advertised := range provider.AuthorizationServers() {
		if matchAuthorizationServer(advertised, server) {
			return true
		}
	}
	return false
}

// resolvePreferredSession applies the preference precedence: an explicit
// account beats the stored account preference, which beats the legacy
// per-scope session preference. A legacy hit is promoted in place.
func (s *Service) resolvePreferredSession(
	ctx context.Context,
	req GetSessionRequest,
	provider Provider,
	sessions []Session,
) (*Session, string, error) {
	if explicit := strings.TrimSpace(req.Options.Account); explicit != "" {
		return sessionByLabel(sessions, explicit), explicit, nil
	}

	hit, err := s.preferences.lookup(ctx, req.ExtensionID, provider.ID(), req.Scopes)
	if err != nil {
		return nil, "", err
	}
	switch hit.source {
	case preferenceFromAccount:
		return sessionByLabel(sessions, hit.accountLabel), hit.accountLabel, nil
	case preferenceFromSession:
		for idx := range sessions {
			if sessions[idx].ID != hit.sessionID {
				continue
			}
			match := cloneSession(sessions[idx])
			if hit.needsMigration {
				s.preferences.migrate(ctx, req.ExtensionID, provider.ID(), req.Scopes, match.Account.Label)
			}
			return &match, match.Account.Label, nil
		}
		return nil, "", nil
	default:
		return nil, "", nil
	}
}

func sessionByLabel(sessions []Session, label string) *Session {
	for idx := range sessions {
		if sessions[idx].Account.Label == label {
			match := cloneSession(sessions[idx])
			return &match
		}
	}
	return nil
}

// silentReuse returns a session the extension may use without any prompt:
// the preferred session when access is already granted, or the lone session
// of a single-account provider.
func (s *Service) silentReuse(
	ctx context.Context,
	req GetSessionRequest,
	provider Provider,
	sessions []Session,
	preferred *Session,
) *Session {
	if preferred != nil && s.accessAllowed(ctx, provider.ID(), preferred.Account.Label, req.ExtensionID) {
		return preferred
	}
	if !provider.SupportsMultipleAccounts() && len(sessions) == 1 {
		if s.accessAllowed(ctx, provider.ID(), sessions[0].Account.Label, req.ExtensionID) {
			match := cloneSession(sessions[0])
			return &match
		}
	}
	return nil
}

func (s *Service) accessAllowed(ctx context.Context, providerID, accountLabel, extensionID string) bool {
	judgment, err := s.access.Access(ctx, providerID, accountLabel, extensionID)
	if err != nil {
		s.logger.Warn("access check failed",
			"provider_id", providerID, "account", accountLabel, "error", err)
		return false
	}
	return judgment == AccessAllowed
}

// accountLoopOutcome tags one iteration of the incorrect-account loop.
type accountLoopOutcome int

const (
	accountLoopAccepted accountLoopOutcome = iota
	accountLoopRetry
	accountLoopAbandoned
)

func (s *Service) interactiveSession(
	ctx context.Context,
	req GetSessionRequest,
	provider Provider,
	sessions []Session,
	preferred *Session,
	targetLabel string,
) (*Session, error) {
	if s.ui == nil {
		return nil, fmt.Errorf("%w: no consent surface available", ErrConsentDenied)
	}

	recreate := req.Options.ForceNewSession && len(sessions) > 0
	approved, err := s.ui.ConfirmConsent(ctx, ConsentRequest{
		ProviderID:    provider.ID(),
		ProviderLabel: provider.Label(),
		ExtensionID:   req.ExtensionID,
		ExtensionName: req.ExtensionName,
		Scopes:        req.Scopes,
		Recreate:      recreate,
		AccountLabel:  targetLabel,
	})
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, fmt.Errorf("%w: %s declined access to %s",
			ErrConsentDenied, req.ExtensionID, provider.ID())
	}

	if len(sessions) > 0 && !req.Options.ForceNewSession {
		chosen, err := s.chooseExistingSession(ctx, req, provider, sessions, preferred)
		if err != nil {
			return nil, err
		}
		if chosen != nil {
			s.recordGrantedSession(ctx, provider, req, *chosen, false)
			return chosen, nil
		}
	}

	created, err := s.createWithAccountLoop(ctx, req, provider, targetLabel)
	if err != nil {
		return nil, err
	}
	s.recordGrantedSession(ctx, provider, req, *created, true)
	return created, nil
}

func (s *Service) chooseExistingSession(
	ctx context.Context,
	req GetSessionRequest,
	provider Provider,
	sessions []Session,
	preferred *Session,
) (*Session, error) {
	if preferred != nil {
		return preferred, nil
	}
	if len(sessions) == 1 {
		match := cloneSession(sessions[0])
		return &match, nil
	}
	if provider.SupportsMultipleAccounts() && strings.TrimSpace(req.Options.Account) == "" {
		selected, err := s.ui.SelectSession(ctx, SessionSelectionRequest{
			ProviderID:    provider.ID(),
			ProviderLabel: provider.Label(),
			ExtensionName: req.ExtensionName,
			Scopes:        req.Scopes,
			Sessions:      cloneSessions(sessions),
		})
		if err != nil {
			return nil, err
		}
		match := cloneSession(selected)
		return &match, nil
	}
	// Multiple sessions but an explicit account that matched none of them:
	// fall through to creation targeting that account.
	return nil, nil
}

// createWithAccountLoop calls CreateSession until the resulting account
// matches the requested one or the user accepts the mismatch.
func (s *Service) createWithAccountLoop(
	ctx context.Context,
	req GetSessionRequest,
	provider Provider,
	targetLabel string,
) (*Session, error) {
	for attempt := 0; attempt <= maxAccountMismatchRetries; attempt++ {
		created, err := provider.CreateSession(ctx, req.Scopes, CreateSessionOptions{
			ActivateImmediate:   true,
			Account:             accountRef(targetLabel),
			AuthorizationServer: req.Options.AuthorizationServer,
		})
		if err != nil {
			return nil, err
		}

		outcome := accountLoopAccepted
		if targetLabel != "" && created.Account.Label != targetLabel {
			outcome, err = s.confirmAccountMismatch(ctx, req, provider, targetLabel, created.Account.Label)
			if err != nil {
				return nil, err
			}
		}

		switch outcome {
		case accountLoopAccepted:
			result := cloneSession(created)
			return &result, nil
		case accountLoopRetry:
			continue
		case accountLoopAbandoned:
			return nil, fmt.Errorf("%w: account mismatch abandoned for %s",
				ErrConsentDenied, provider.ID())
		}
	}
	return nil, fmt.Errorf("%w: account mismatch persisted for %s",
		ErrConsentDenied, provider.ID())
}

func (s *Service) confirmAccountMismatch(
	ctx context.Context,
	req GetSessionRequest,
	provider Provider,
	requested string,
	received string,
) (accountLoopOutcome, error) {
	choice, err := s.ui.ConfirmAccountMismatch(ctx, AccountMismatchRequest{
		ProviderLabel: provider.Label(),
		ExtensionName: req.ExtensionName,
		Requested:     requested,
		Received:      received,
	})
	if err != nil {
		return accountLoopAbandoned, err
	}
	switch choice {
	case MismatchKeep:
		return accountLoopAccepted, nil
	case MismatchRetry:
		return accountLoopRetry, nil
	default:
		return accountLoopAbandoned, nil
	}
}

// opportunisticGrant returns the first session the extension may already
// use when no stored preference constrained the request. It never touches
// the UI, so both the silent and the passive branch run it.
func (s *Service) opportunisticGrant(
	ctx context.Context,
	req GetSessionRequest,
	provider Provider,
	sessions []Session,
	preferred *Session,
) *Session {
	if preferred != nil {
		return nil
	}
	for idx := range sessions {
		if s.accessAllowed(ctx, provider.ID(), sessions[idx].Account.Label, req.ExtensionID) {
			match := cloneSession(sessions[idx])
			s.recordGrantedSession(ctx, provider, req, match, false)
			return &match
		}
	}
	return nil
}

// nudgeForAccess fires the non-blocking prompt for passive requests that
// ended without a usable session.
func (s *Service) nudgeForAccess(
	ctx context.Context,
	req GetSessionRequest,
	provider Provider,
	sessions []Session,
) {
	if s.ui == nil {
		return
	}
	if len(sessions) > 0 {
		s.ui.RequestAccess(ctx, AccessPromptRequest{
			ProviderID:    provider.ID(),
			ProviderLabel: provider.Label(),
			ExtensionID:   req.ExtensionID,
			ExtensionName: req.ExtensionName,
			Scopes:        req.Scopes,
			Sessions:      cloneSessions(sessions),
		})
		return
	}
	s.ui.RequestNewSession(ctx, NewSessionPromptRequest{
		ProviderID:    provider.ID(),
		ProviderLabel: provider.Label(),
		ExtensionID:   req.ExtensionID,
		ExtensionName: req.ExtensionName,
		Scopes:        req.Scopes,
	})
}

// recordGrantedSession updates the ledger, preference, usage history and
// session fan-out after the broker decided to hand a session out. Telemetry
// here is observational and never alters the result.
func (s *Service) recordGrantedSession(
	ctx context.Context,
	provider Provider,
	req GetSessionRequest,
	session Session,
	created bool,
) {
	if err := s.access.UpdateAllowedExtensions(ctx, provider.ID(), session.Account.Label, []AccessEntry{{
		ID:      req.ExtensionID,
		Name:    req.ExtensionName,
		Allowed: true,
	}}); err != nil {
		s.logger.Warn("allow-list update failed",
			"provider_id", provider.ID(), "extension_id", req.ExtensionID, "error", err)
	}
	if err := s.preferences.setAccount(ctx, req.ExtensionID, provider.ID(), session.Account.Label); err != nil {
		s.logger.Warn("account preference update failed",
			"provider_id", provider.ID(), "extension_id", req.ExtensionID, "error", err)
	}
	if err := s.usage.AddAccountUsage(ctx, provider.ID(), session.Account.Label,
		req.Scopes, req.ExtensionID, req.ExtensionName); err != nil {
		s.logger.Warn("usage update failed",
			"provider_id", provider.ID(), "extension_id", req.ExtensionID, "error", err)
	}

	if created {
		s.sessionChanges.Emit(SessionChangeEvent{
			ProviderID: provider.ID(),
			Added:      []Session{cloneSession(session)},
		})
	}

	s.emitFirstUse(ctx, "authsessions.session.first_use.total",
		ExtensionKey(req.ExtensionID)+"|"+provider.ID(),
		map[string]string{"provider_id": provider.ID()})
	s.emitFirstUse(ctx, "authsessions.session.first_use_scoped.total",
		ExtensionKey(req.ExtensionID)+"|"+provider.ID()+"|"+ScopesKey(req.Scopes),
		map[string]string{"provider_id": provider.ID()})
}

func (s *Service) emitFirstUse(ctx context.Context, counter string, key string, tags map[string]string) {
	s.firstUseMu.Lock()
	_, seen := s.firstUse[key]
	if !seen {
		s.firstUse[key] = struct{}{}
	}
	s.firstUseMu.Unlock()
	if seen {
		return
	}
	s.metricsRecorder.IncCounter(ctx, counter, 1, cloneTags(tags))
}

func accountRef(label string) *SessionAccount {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil
	}
	return &SessionAccount{Label: label}
}
