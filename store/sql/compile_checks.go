package sqlstore

import "github.com/goliatone/go-authsessions/core"

var (
	_ core.StateStore  = (*StateStore)(nil)
	_ core.StateStore  = (*CachedStateStore)(nil)
	_ core.SecretStore = (*SecretStore)(nil)
)
