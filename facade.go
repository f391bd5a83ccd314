package authsessions

import (
	"fmt"

	authcommand "github.com/goliatone/go-authsessions/command"
	"github.com/goliatone/go-authsessions/core"
	authquery "github.com/goliatone/go-authsessions/query"
)

// CommandQueryService is the broker surface the facade wires commands and
// queries against. *core.Service satisfies it.
type CommandQueryService interface {
	authcommand.MutatingService
	authquery.SessionReader
}

// AccessStore combines the ledger's read and write surfaces.
type AccessStore interface {
	authcommand.AccessWriter
	authquery.AccessReader
}

type Commands struct {
	CreateSession           *authcommand.CreateSessionCommand
	RemoveSession           *authcommand.RemoveSessionCommand
	UpdateAllowedExtensions *authcommand.UpdateAllowedExtensionsCommand
	RemoveAllowedExtensions *authcommand.RemoveAllowedExtensionsCommand
	ClearSessionPreference  *authcommand.ClearSessionPreferenceCommand
	RemoveDynamicProvider   *authcommand.RemoveDynamicProviderCommand
}

type Queries struct {
	GetSession              *authquery.GetSessionQuery
	GetAccounts             *authquery.GetAccountsQuery
	ListAllowedExtensions   *authquery.ListAllowedExtensionsQuery
	ListAccountUsages       *authquery.ListAccountUsagesQuery
	ListInteractedProviders *authquery.ListInteractedProvidersQuery
}

// Facade bundles the command and query handlers for one broker instance so a
// host can hand them to its dispatcher in one move.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	accessStore   AccessStore
	usageReader   authquery.UsageReader
	dynamicReader authquery.DynamicProviderReader
}

func WithAccessStore(store AccessStore) FacadeOption {
	return func(options *facadeOptions) {
		options.accessStore = store
	}
}

func WithUsageReader(reader authquery.UsageReader) FacadeOption {
	return func(options *facadeOptions) {
		options.usageReader = reader
	}
}

func WithDynamicProviderReader(reader authquery.DynamicProviderReader) FacadeOption {
	return func(options *facadeOptions) {
		options.dynamicReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("authsessions: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	access := cfg.accessStore
	if access == nil {
		access = resolveAccessStore(service)
	}
	usage := cfg.usageReader
	if usage == nil {
		usage = resolveUsageReader(service)
	}
	dynamic := cfg.dynamicReader
	if dynamic == nil {
		dynamic = resolveDynamicReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateSession:           authcommand.NewCreateSessionCommand(service),
		RemoveSession:           authcommand.NewRemoveSessionCommand(service),
		UpdateAllowedExtensions: authcommand.NewUpdateAllowedExtensionsCommand(access),
		RemoveAllowedExtensions: authcommand.NewRemoveAllowedExtensionsCommand(access),
		ClearSessionPreference:  authcommand.NewClearSessionPreferenceCommand(service),
		RemoveDynamicProvider:   authcommand.NewRemoveDynamicProviderCommand(service),
	}
	facade.queries = Queries{
		GetSession:              authquery.NewGetSessionQuery(service),
		GetAccounts:             authquery.NewGetAccountsQuery(service),
		ListAllowedExtensions:   authquery.NewListAllowedExtensionsQuery(access),
		ListAccountUsages:       authquery.NewListAccountUsagesQuery(usage),
		ListInteractedProviders: authquery.NewListInteractedProvidersQuery(dynamic),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveAccessStore pulls the ledger off services that expose it, the way
// *core.Service does. A nil result leaves the access handlers returning their
// dependency error at call time.
func resolveAccessStore(service CommandQueryService) AccessStore {
	if store, ok := service.(AccessStore); ok {
		return store
	}
	provider, ok := service.(interface{ AccessLedger() *core.AccessLedger })
	if !ok {
		return nil
	}
	ledger := provider.AccessLedger()
	if ledger == nil {
		return nil
	}
	return ledger
}

func resolveUsageReader(service CommandQueryService) authquery.UsageReader {
	if reader, ok := service.(authquery.UsageReader); ok {
		return reader
	}
	provider, ok := service.(interface{ UsageTracker() *core.UsageTracker })
	if !ok {
		return nil
	}
	tracker := provider.UsageTracker()
	if tracker == nil {
		return nil
	}
	return tracker
}

func resolveDynamicReader(service CommandQueryService) authquery.DynamicProviderReader {
	if reader, ok := service.(authquery.DynamicProviderReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		DynamicProviders() *core.DynamicProviderStore
	})
	if !ok {
		return nil
	}
	store := provider.DynamicProviders()
	if store == nil {
		return nil
	}
	return store
}
