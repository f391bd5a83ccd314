package authsessions

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-authsessions/core"
)

// ProviderPack bundles the auth providers one host extension contributes.
type ProviderPack struct {
	Name      string
	Providers []core.Provider
}

// DelegatePack contributes a dynamic-provider delegate at a given priority.
type DelegatePack struct {
	Name     string
	Priority int
	Delegate core.DynamicProviderDelegate
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects provider packs, dynamic delegates and command/query
// bundles from host extensions before the broker is assembled, then applies
// them in one pass.
type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks map[string]ProviderPack
	delegatePacks map[string]DelegatePack
	bundles       map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks: map[string]ProviderPack{},
		delegatePacks: map[string]DelegatePack{},
		bundles:       map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("authsessions: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("authsessions: provider pack name is required")
	}
	if len(pack.Providers) == 0 {
		return fmt.Errorf("authsessions: provider pack %q has no providers", name)
	}

	normalized := ProviderPack{
		Name:      name,
		Providers: append([]core.Provider(nil), pack.Providers...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("authsessions: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterDelegatePack(pack DelegatePack) error {
	if h == nil {
		return fmt.Errorf("authsessions: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("authsessions: delegate pack name is required")
	}
	if pack.Delegate == nil {
		return fmt.Errorf("authsessions: delegate pack %q has no delegate", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.delegatePacks[name]; exists {
		return fmt.Errorf("authsessions: delegate pack %q already registered", name)
	}
	h.delegatePacks[name] = DelegatePack{
		Name:     name,
		Priority: pack.Priority,
		Delegate: pack.Delegate,
	}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("authsessions: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("authsessions: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("authsessions: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("authsessions: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyProviderPacks registers every contributed provider with the registry,
// in pack-name order.
func (h *ExtensionHooks) ApplyProviderPacks(registry core.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("authsessions: registry is required")
	}

	for _, pack := range h.ProviderPacks() {
		for _, provider := range pack.Providers {
			if provider == nil {
				return fmt.Errorf("authsessions: provider pack %q contains nil provider", pack.Name)
			}
			if err := registry.Register(provider); err != nil {
				return err
			}
		}
	}
	return nil
}

// DelegateRegistrar is the registry surface delegate packs attach to.
// *core.ProviderRegistry satisfies it.
type DelegateRegistrar interface {
	RegisterDynamicProviderDelegate(priority int, delegate core.DynamicProviderDelegate) (cancel func())
}

// ApplyDelegatePacks attaches every contributed dynamic-provider delegate and
// returns a cancel function releasing them all.
func (h *ExtensionHooks) ApplyDelegatePacks(registrar DelegateRegistrar) (cancel func(), err error) {
	if h == nil {
		return func() {}, nil
	}
	if registrar == nil {
		return nil, fmt.Errorf("authsessions: delegate registrar is required")
	}

	cancels := make([]func(), 0, len(h.DelegatePacks()))
	for _, pack := range h.DelegatePacks() {
		cancels = append(cancels, registrar.RegisterDynamicProviderDelegate(pack.Priority, pack.Delegate))
	}
	return func() {
		for _, release := range cancels {
			release()
		}
	}, nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("authsessions: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:      pack.Name,
			Providers: append([]core.Provider(nil), pack.Providers...),
		})
	}
	return out
}

// DelegatePacks returns the contributed delegates ordered by priority, then
// by name for equal priorities.
func (h *ExtensionHooks) DelegatePacks() []DelegatePack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]DelegatePack, 0, len(h.delegatePacks))
	for _, pack := range h.delegatePacks {
		out = append(out, pack)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
