package authsessions

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-authsessions/core"
)

func TestExtensionHooks_RegisterAndApplyProviderPacks(t *testing.T) {
	hooks := NewExtensionHooks()
	pack := ProviderPack{
		Name: "downstream-pack",
		Providers: []core.Provider{
			extensionProvider{id: "custom_provider"},
		},
	}
	if err := hooks.RegisterProviderPack(pack); err != nil {
		t.Fatalf("register provider pack: %v", err)
	}
	if err := hooks.RegisterProviderPack(pack); err == nil {
		t.Fatalf("expected duplicate provider pack registration error")
	}

	registry := core.NewProviderRegistry()
	if err := hooks.ApplyProviderPacks(registry); err != nil {
		t.Fatalf("apply provider packs: %v", err)
	}
	if !registry.IsRegistered("custom_provider") {
		t.Fatalf("expected provider pack registration in registry")
	}
}

func TestExtensionHooks_DelegatePackOrdering(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterDelegatePack(DelegatePack{
		Name:     "fallback",
		Priority: 10,
		Delegate: extensionDelegate{},
	}); err != nil {
		t.Fatalf("register fallback delegate: %v", err)
	}
	if err := hooks.RegisterDelegatePack(DelegatePack{
		Name:     "primary",
		Priority: 0,
		Delegate: extensionDelegate{},
	}); err != nil {
		t.Fatalf("register primary delegate: %v", err)
	}
	if err := hooks.RegisterDelegatePack(DelegatePack{Name: "broken"}); err == nil {
		t.Fatalf("expected missing delegate error")
	}

	packs := hooks.DelegatePacks()
	if len(packs) != 2 || packs[0].Name != "primary" || packs[1].Name != "fallback" {
		t.Fatalf("expected priority ordering, got %#v", packs)
	}
}

func TestExtensionHooks_ApplyDelegatePacks(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterDelegatePack(DelegatePack{
		Name:     "oauth-delegate",
		Priority: 0,
		Delegate: extensionDelegate{},
	}); err != nil {
		t.Fatalf("register delegate: %v", err)
	}

	registry := core.NewProviderRegistry()
	release, err := hooks.ApplyDelegatePacks(registry)
	if err != nil {
		t.Fatalf("apply delegate packs: %v", err)
	}
	defer release()

	provider, err := registry.CreateDynamicProvider(context.Background(), "https://auth.example.com", nil, "")
	if err != nil {
		t.Fatalf("create dynamic provider: %v", err)
	}
	if provider == nil {
		t.Fatalf("expected delegate-backed provider")
	}

	release()
	orphan, err := registry.CreateDynamicProvider(context.Background(), "https://other.example.com", nil, "")
	if err != nil {
		t.Fatalf("create after release: %v", err)
	}
	if orphan != nil {
		t.Fatalf("expected no provider after delegates released, got %v", orphan.ID())
	}
}

func TestExtensionHooks_CommandQueryBundles(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterCommandQueryBundle("bundle_b", func(service CommandQueryService) (any, error) {
		return NewFacade(service)
	}); err != nil {
		t.Fatalf("register bundle b: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("bundle_a", func(CommandQueryService) (any, error) {
		return "a", nil
	}); err != nil {
		t.Fatalf("register bundle a: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("bundle_a", func(CommandQueryService) (any, error) {
		return nil, nil
	}); err == nil {
		t.Fatalf("expected duplicate bundle error")
	}

	names := hooks.BundleNames()
	if len(names) != 2 || names[0] != "bundle_a" || names[1] != "bundle_b" {
		t.Fatalf("unexpected bundle names: %#v", names)
	}

	bundles, err := hooks.BuildCommandQueryBundles(&stubFacadeService{})
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("expected two bundles, got %d", len(bundles))
	}
	if _, ok := bundles["bundle_b"].(*Facade); !ok {
		t.Fatalf("expected facade bundle, got %T", bundles["bundle_b"])
	}

	if err := hooks.RegisterCommandQueryBundle("bundle_c", func(CommandQueryService) (any, error) {
		return nil, fmt.Errorf("boom")
	}); err != nil {
		t.Fatalf("register bundle c: %v", err)
	}
	if _, err := hooks.BuildCommandQueryBundles(&stubFacadeService{}); err == nil {
		t.Fatalf("expected bundle factory error to surface")
	}
}

type extensionProvider struct {
	id string
}

func (p extensionProvider) ID() string                     { return p.id }
func (p extensionProvider) Label() string                  { return p.id }
func (p extensionProvider) SupportsMultipleAccounts() bool { return false }
func (p extensionProvider) AuthorizationServers() []string { return nil }

func (p extensionProvider) GetSessions(context.Context, []string, core.ProviderSessionOptions) ([]core.Session, error) {
	return nil, nil
}

func (p extensionProvider) CreateSession(context.Context, []string, core.CreateSessionOptions) (core.Session, error) {
	return core.Session{}, fmt.Errorf("extension provider: sessions not supported")
}

func (p extensionProvider) RemoveSession(context.Context, string) error {
	return nil
}

type extensionDelegate struct{}

func (extensionDelegate) CreateDynamicProvider(_ context.Context, req core.DynamicProviderRequest) (core.Provider, error) {
	return extensionProvider{id: req.ProviderID}, nil
}
