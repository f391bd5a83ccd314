package query

import (
	"context"

	"github.com/goliatone/go-authsessions/core"
)

// SessionReader answers session and account lookups. *core.Service
// satisfies it.
type SessionReader interface {
	GetSession(ctx context.Context, req core.GetSessionRequest) (*core.Session, error)
	GetAccounts(ctx context.Context, providerID string) ([]core.SessionAccount, error)
}

// AccessReader lists allow-list entries for one (provider, account) pair.
type AccessReader interface {
	AllowedExtensions(ctx context.Context, providerID string, accountLabel string) ([]core.AccessEntry, error)
}

// UsageReader lists usage history for one (provider, account) pair.
type UsageReader interface {
	ReadAccountUsages(ctx context.Context, providerID string, accountLabel string) ([]core.UsageRecord, error)
}

// DynamicProviderReader lists the dynamic providers the host has talked to.
type DynamicProviderReader interface {
	InteractedProviders(ctx context.Context) ([]core.DynamicProviderInfo, error)
}

type GetSessionQuery struct {
	reader SessionReader
}

func NewGetSessionQuery(reader SessionReader) *GetSessionQuery {
	return &GetSessionQuery{reader: reader}
}

func (q *GetSessionQuery) Query(ctx context.Context, msg GetSessionMessage) (*core.Session, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: session reader is required")
	}
	return q.reader.GetSession(ctx, msg.Request)
}

type GetAccountsQuery struct {
	reader SessionReader
}

func NewGetAccountsQuery(reader SessionReader) *GetAccountsQuery {
	return &GetAccountsQuery{reader: reader}
}

func (q *GetAccountsQuery) Query(ctx context.Context, msg GetAccountsMessage) ([]core.SessionAccount, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: session reader is required")
	}
	return q.reader.GetAccounts(ctx, msg.ProviderID)
}

type ListAllowedExtensionsQuery struct {
	reader AccessReader
}

func NewListAllowedExtensionsQuery(reader AccessReader) *ListAllowedExtensionsQuery {
	return &ListAllowedExtensionsQuery{reader: reader}
}

func (q *ListAllowedExtensionsQuery) Query(
	ctx context.Context,
	msg ListAllowedExtensionsMessage,
) ([]core.AccessEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: access reader is required")
	}
	return q.reader.AllowedExtensions(ctx, msg.ProviderID, msg.AccountLabel)
}

type ListAccountUsagesQuery struct {
	reader UsageReader
}

func NewListAccountUsagesQuery(reader UsageReader) *ListAccountUsagesQuery {
	return &ListAccountUsagesQuery{reader: reader}
}

func (q *ListAccountUsagesQuery) Query(
	ctx context.Context,
	msg ListAccountUsagesMessage,
) ([]core.UsageRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: usage reader is required")
	}
	return q.reader.ReadAccountUsages(ctx, msg.ProviderID, msg.AccountLabel)
}

type ListInteractedProvidersQuery struct {
	reader DynamicProviderReader
}

func NewListInteractedProvidersQuery(reader DynamicProviderReader) *ListInteractedProvidersQuery {
	return &ListInteractedProvidersQuery{reader: reader}
}

func (q *ListInteractedProvidersQuery) Query(
	ctx context.Context,
	_ ListInteractedProvidersMessage,
) ([]core.DynamicProviderInfo, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: dynamic provider reader is required")
	}
	return q.reader.InteractedProviders(ctx)
}
