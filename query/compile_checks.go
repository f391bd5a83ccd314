package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-authsessions/core"
)

var (
	_ gocmd.Querier[GetSessionMessage, *core.Session]                           = (*GetSessionQuery)(nil)
	_ gocmd.Querier[GetAccountsMessage, []core.SessionAccount]                  = (*GetAccountsQuery)(nil)
	_ gocmd.Querier[ListAllowedExtensionsMessage, []core.AccessEntry]           = (*ListAllowedExtensionsQuery)(nil)
	_ gocmd.Querier[ListAccountUsagesMessage, []core.UsageRecord]               = (*ListAccountUsagesQuery)(nil)
	_ gocmd.Querier[ListInteractedProvidersMessage, []core.DynamicProviderInfo] = (*ListInteractedProvidersQuery)(nil)
)
