package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// UnregisterOrigin tags who initiated an unregistration. Self-initiated
// removals suppress the unregistered event so the caller does not observe
// its own action echoed back as an external change.
type UnregisterOrigin int

const (
	UnregisterExternal UnregisterOrigin = iota
	UnregisterSelf
)

type dynamicDelegateEntry struct {
	priority int
	order    int
	delegate DynamicProviderDelegate
}

// ProviderRegistry owns the live provider instances, the declared-provider
// metadata, and the activation-on-demand protocol.
type ProviderRegistry struct {
	mu         sync.RWMutex
	providers  map[string]Provider
	declared   map[string]DeclaredProvider
	dynamicIDs map[string]struct{}
	delegates  []dynamicDelegateEntry
	nextOrder  int

	logger            Logger
	metrics           MetricsRecorder
	activator         Activator
	activationTimeout time.Duration
	dynamicStore      *DynamicProviderStore
	clientRegistrar   ClientRegistrar

	registered   *EventStream[RegistryEvent]
	unregistered *EventStream[RegistryEvent]
}

type RegistryOption func(*ProviderRegistry)

func RegistryWithLogger(logger Logger) RegistryOption {
	return func(r *ProviderRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func RegistryWithMetrics(recorder MetricsRecorder) RegistryOption {
	return func(r *ProviderRegistry) {
		if recorder != nil {
			r.metrics = recorder
		}
	}
}

func RegistryWithActivator(activator Activator) RegistryOption {
	return func(r *ProviderRegistry) {
		r.activator = activator
	}
}

func RegistryWithActivationTimeout(timeout time.Duration) RegistryOption {
	return func(r *ProviderRegistry) {
		if timeout > 0 {
			r.activationTimeout = timeout
		}
	}
}

func RegistryWithDynamicStore(store *DynamicProviderStore) RegistryOption {
	return func(r *ProviderRegistry) {
		r.dynamicStore = store
	}
}

func RegistryWithClientRegistrar(registrar ClientRegistrar) RegistryOption {
	return func(r *ProviderRegistry) {
		r.clientRegistrar = registrar
	}
}

func RegistryWithDeclaredProviders(declared ...DeclaredProvider) RegistryOption {
	return func(r *ProviderRegistry) {
		for _, decl := range declared {
			id := strings.TrimSpace(decl.ID)
			if id == "" {
				continue
			}
			decl.ID = id
			r.declared[id] = decl
		}
	}
}

func NewProviderRegistry(opts ...RegistryOption) *ProviderRegistry {
	registry := &ProviderRegistry{
		providers:         make(map[string]Provider),
		declared:          make(map[string]DeclaredProvider),
		dynamicIDs:        make(map[string]struct{}),
		logger:            glog.Ensure(nil),
		metrics:           NopMetricsRecorder{},
		activationTimeout: defaultActivationTimeoutMS * time.Millisecond,
		registered:        NewEventStream[RegistryEvent](),
		unregistered:      NewEventStream[RegistryEvent](),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(registry)
	}
	return registry
}

// Declare records manifest metadata for a provider that may activate later.
func (r *ProviderRegistry) Declare(decl DeclaredProvider) error {
	id := strings.TrimSpace(decl.ID)
	if id == "" {
		return fmt.Errorf("core: declared provider id is required")
	}
	decl.ID = id
	r.mu.Lock()
	r.declared[id] = decl
	r.mu.Unlock()
	return nil
}

func (r *ProviderRegistry) IsDeclared(providerID string) bool {
	r.mu.RLock()
	_, ok := r.declared[strings.TrimSpace(providerID)]
	r.mu.RUnlock()
	return ok
}

// Register installs a live provider instance. An undeclared id is logged and
// counted but still registered; exactly one instance may exist per id.
func (r *ProviderRegistry) Register(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("core: provider is nil")
	}
	id := strings.TrimSpace(provider.ID())
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}

	r.mu.Lock()
	if _, exists := r.providers[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("core: provider already registered: %s", id)
	}
	_, declared := r.declared[id]
	r.providers[id] = provider
	r.mu.Unlock()

	if !declared && !r.isDynamicLocked(id) {
		r.logger.Warn("provider registered without declaration", "provider_id", id)
		r.metrics.IncCounter(context.Background(), "authsessions.registry.undeclared.total", 1,
			map[string]string{"provider_id": id})
	}

	r.registered.Emit(RegistryEvent{ProviderID: id, Label: provider.Label()})
	return nil
}

// Unregister removes the live instance. UnregisterSelf suppresses the
// unregistered event for the caller-initiated case.
func (r *ProviderRegistry) Unregister(providerID string, origin UnregisterOrigin) error {
	id := strings.TrimSpace(providerID)
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}

	r.mu.Lock()
	provider, ok := r.providers[id]
	if ok {
		delete(r.providers, id)
		delete(r.dynamicIDs, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	if origin != UnregisterSelf {
		r.unregistered.Emit(RegistryEvent{ProviderID: id, Label: provider.Label()})
	}
	return nil
}

func (r *ProviderRegistry) Get(providerID string) (Provider, error) {
	id := strings.TrimSpace(providerID)
	r.mu.RLock()
	provider, ok := r.providers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return provider, nil
}

func (r *ProviderRegistry) IsRegistered(providerID string) bool {
	r.mu.RLock()
	_, ok := r.providers[strings.TrimSpace(providerID)]
	r.mu.RUnlock()
	return ok
}

func (r *ProviderRegistry) IsDynamic(providerID string) bool {
	return r.isDynamicLocked(strings.TrimSpace(providerID))
}

func (r *ProviderRegistry) isDynamicLocked(id string) bool {
	r.mu.RLock()
	_, ok := r.dynamicIDs[id]
	r.mu.RUnlock()
	return ok
}

func (r *ProviderRegistry) List() []Provider {
	r.mu.RLock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	providers := make([]Provider, 0, len(ids))
	for _, id := range ids {
		providers = append(providers, r.providers[id])
	}
	r.mu.RUnlock()
	return providers
}

// OnRegistered subscribes to registration events.
func (r *ProviderRegistry) OnRegistered(handler func(RegistryEvent)) (cancel func()) {
	return r.registered.Subscribe(handler)
}

// OnUnregistered subscribes to externally-originated unregistration events.
func (r *ProviderRegistry) OnUnregistered(handler func(RegistryEvent)) (cancel func()) {
	return r.unregistered.Subscribe(handler)
}

// TryActivate fires the provider's activation event and races the registry's
// registered stream against the configured timeout. Providers living in
// another process register asynchronously, so the wait is mandatory even
// when activation itself returns immediately.
func (r *ProviderRegistry) TryActivate(ctx context.Context, providerID string, immediate bool) (Provider, error) {
	id := strings.TrimSpace(providerID)
	if provider, err := r.Get(id); err == nil {
		return provider, nil
	}

	arrived := make(chan Provider, 1)
	cancel := r.registered.Subscribe(func(event RegistryEvent) {
		if event.ProviderID != id {
			return
		}
		if provider, err := r.Get(id); err == nil {
			select {
			case arrived <- provider:
			default:
			}
		}
	})
	defer cancel()

	// The provider may have registered between the Get above and the
	// subscription taking effect.
	if provider, err := r.Get(id); err == nil {
		return provider, nil
	}

	if r.activator != nil {
		kind := ActivationNormal
		if immediate {
			kind = ActivationImmediate
		}
		if err := r.activator.ActivateByEvent(ctx, "onAuthenticationRequest:"+id, kind); err != nil {
			return nil, err
		}
	}

	timer := time.NewTimer(r.activationTimeout)
	defer timer.Stop()

	select {
	case provider := <-arrived:
		return provider, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %s", ErrActivationTimeout, id, r.activationTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProviderForAuthorizationServer resolves which provider services the given
// authorization server: registered providers first (exact or wildcard
// match), then declared providers, activating each glob match and
// re-checking its resolved server list. Returns empty when nothing matches.
func (r *ProviderRegistry) ProviderForAuthorizationServer(ctx context.Context, serverURL string) (string, error) {
	server := normalizeServerURL(serverURL)
	if server == "" {
		return "", fmt.Errorf("core: authorization server url is required")
	}

	for _, provider := range r.List() {
		for _, advertised := range provider.AuthorizationServers() {
			if matchAuthorizationServer(advertised, server) {
				return provider.ID(), nil
			}
		}
	}

	r.mu.RLock()
	declared := make([]DeclaredProvider, 0, len(r.declared))
	for _, decl := range r.declared {
		declared = append(declared, decl)
	}
	r.mu.RUnlock()
	sort.Slice(declared, func(i, j int) bool { return declared[i].ID < declared[j].ID })

	for _, decl := range declared {
		if r.IsRegistered(decl.ID) {
			continue
		}
		matched := false
		for _, glob := range decl.AuthorizationServerGlobs {
			if matchAuthorizationServer(glob, server) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		provider, err := r.TryActivate(ctx, decl.ID, false)
		if err != nil {
			r.logger.Warn("declared provider failed to activate for authorization server",
				"provider_id", decl.ID, "server", server, "error", err)
			continue
		}
		// A declared provider may only learn its final server list during
		// activation, so the declaration's glob match is not enough.
		for _, advertised := range provider.AuthorizationServers() {
			if matchAuthorizationServer(advertised, server) {
				return provider.ID(), nil
			}
		}
	}
	return "", nil
}

// RegisterDynamicProviderDelegate adds a host delegate for dynamic provider
// creation. Lower priority values are consulted first.
func (r *ProviderRegistry) RegisterDynamicProviderDelegate(priority int, delegate DynamicProviderDelegate) (cancel func()) {
	if delegate == nil {
		return func() {}
	}
	r.mu.Lock()
	r.nextOrder++
	entry := dynamicDelegateEntry{priority: priority, order: r.nextOrder, delegate: delegate}
	r.delegates = append(r.delegates, entry)
	sort.SliceStable(r.delegates, func(i, j int) bool {
		if r.delegates[i].priority != r.delegates[j].priority {
			return r.delegates[i].priority < r.delegates[j].priority
		}
		return r.delegates[i].order < r.delegates[j].order
	})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for idx, existing := range r.delegates {
			if existing.order == entry.order {
				r.delegates = append(r.delegates[:idx], r.delegates[idx+1:]...)
				return
			}
		}
	}
}

// CreateDynamicProvider materializes a provider purely from an authorization
// server URL. Any previously stored client registration and token set are
// handed to the delegate so the provider can come up already holding valid
// sessions. Fails soft: no delegate or no usable provider yields nil, nil.
func (r *ProviderRegistry) CreateDynamicProvider(
	ctx context.Context,
	authorizationServer string,
	serverMetadata map[string]any,
	resource string,
) (Provider, error) {
	server := normalizeServerURL(authorizationServer)
	if server == "" {
		return nil, fmt.Errorf("core: authorization server url is required")
	}

	r.mu.RLock()
	delegates := make([]dynamicDelegateEntry, len(r.delegates))
	copy(delegates, r.delegates)
	r.mu.RUnlock()

	if len(delegates) == 0 {
		r.logger.Warn("no dynamic provider delegate registered", "server", server)
		return nil, nil
	}

	candidateID := DynamicProviderID(server, resource)
	if provider, err := r.Get(candidateID); err == nil {
		return provider, nil
	}

	request := DynamicProviderRequest{
		ProviderID:          candidateID,
		AuthorizationServer: server,
		ServerMetadata:      copyAnyMap(serverMetadata),
		Resource:            strings.TrimSpace(resource),
	}
	if r.dynamicStore != nil {
		if credential, err := r.dynamicStore.ClientRegistration(ctx, candidateID); err == nil && credential != nil {
			request.ClientCredential = credential
			if tokens, tokenErr := r.dynamicStore.SessionsForDynamicProvider(ctx, candidateID, credential.ClientID); tokenErr == nil {
				request.Tokens = tokens
			}
		}
	}
	if request.ClientCredential == nil && r.clientRegistrar != nil {
		credential, err := r.clientRegistrar.RequestClientRegistration(ctx, server)
		switch {
		case err != nil:
			r.logger.Warn("client registration request failed", "server", server, "error", err)
		case strings.TrimSpace(credential.ClientID) == "":
			r.logger.Warn("client registration produced no client id", "server", server)
		default:
			request.ClientCredential = &credential
			if r.dynamicStore != nil {
				if storeErr := r.dynamicStore.StoreClientRegistration(ctx, candidateID, server,
					credential.ClientID, credential.ClientSecret, ""); storeErr != nil {
					r.logger.Warn("client registration persist failed", "server", server, "error", storeErr)
				}
			}
		}
	}

	for _, entry := range delegates {
		provider, err := entry.delegate.CreateDynamicProvider(ctx, request)
		if err != nil {
			r.logger.Warn("dynamic provider delegate failed", "server", server, "error", err)
			continue
		}
		if provider == nil || strings.TrimSpace(provider.ID()) == "" {
			continue
		}

		r.mu.Lock()
		id := strings.TrimSpace(provider.ID())
		r.dynamicIDs[id] = struct{}{}
		_, exists := r.providers[id]
		if !exists {
			r.providers[id] = provider
		}
		r.mu.Unlock()

		if !exists {
			r.registered.Emit(RegistryEvent{ProviderID: id, Label: provider.Label()})
		}
		return provider, nil
	}

	r.logger.Warn("dynamic provider creation produced no usable provider", "server", server)
	return nil, nil
}

// DynamicProviderID derives the deterministic provider id for an
// authorization server, optionally salted by a resource indicator.
func DynamicProviderID(authorizationServer string, resource string) string {
	server := normalizeServerURL(authorizationServer)
	seed := server
	if trimmed := strings.TrimSpace(resource); trimmed != "" {
		seed += "|" + trimmed
	}
	sum := sha256.Sum256([]byte(seed))
	return "dynamic-" + hex.EncodeToString(sum[:8])
}

func normalizeServerURL(raw string) string {
	return strings.TrimSuffix(strings.TrimSpace(raw), "/")
}

// matchAuthorizationServer matches a server URL against a pattern where '*'
// spans any run of characters. Patterns without wildcards compare exactly
// after trailing-slash normalization.
func matchAuthorizationServer(pattern, server string) bool {
	pattern = normalizeServerURL(pattern)
	server = normalizeServerURL(server)
	if pattern == "" || server == "" {
		return false
	}
	if !strings.Contains(pattern, "*") {
		return strings.EqualFold(pattern, server)
	}

	segments := strings.Split(strings.ToLower(pattern), "*")
	rest := strings.ToLower(server)
	for idx, segment := range segments {
		if segment == "" {
			continue
		}
		pos := strings.Index(rest, segment)
		if pos < 0 {
			return false
		}
		if idx == 0 && pos != 0 {
			return false
		}
		rest = rest[pos+len(segment):]
	}
	if last := segments[len(segments)-1]; last != "" && !strings.HasSuffix(strings.ToLower(server), last) {
		return false
	}
	return true
}
