package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-authsessions/core"
)

const (
	TypeGetSession              = "authsessions.query.session.get"
	TypeGetAccounts             = "authsessions.query.accounts.list"
	TypeListAllowedExtensions   = "authsessions.query.access.list"
	TypeListAccountUsages       = "authsessions.query.usage.list"
	TypeListInteractedProviders = "authsessions.query.dynamic_provider.list"
)

type GetSessionMessage struct {
	Request core.GetSessionRequest
}

func (GetSessionMessage) Type() string { return TypeGetSession }

func (m GetSessionMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("query: provider id is required")
	}
	if strings.TrimSpace(m.Request.ExtensionID) == "" {
		return fmt.Errorf("query: extension id is required")
	}
	return m.Request.Options.Validate()
}

type GetAccountsMessage struct {
	ProviderID string
}

func (GetAccountsMessage) Type() string { return TypeGetAccounts }

func (m GetAccountsMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("query: provider id is required")
	}
	return nil
}

type ListAllowedExtensionsMessage struct {
	ProviderID   string
	AccountLabel string
}

func (ListAllowedExtensionsMessage) Type() string { return TypeListAllowedExtensions }

func (m ListAllowedExtensionsMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("query: provider id is required")
	}
	if strings.TrimSpace(m.AccountLabel) == "" {
		return fmt.Errorf("query: account label is required")
	}
	return nil
}

type ListAccountUsagesMessage struct {
	ProviderID   string
	AccountLabel string
}

func (ListAccountUsagesMessage) Type() string { return TypeListAccountUsages }

func (m ListAccountUsagesMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("query: provider id is required")
	}
	if strings.TrimSpace(m.AccountLabel) == "" {
		return fmt.Errorf("query: account label is required")
	}
	return nil
}

type ListInteractedProvidersMessage struct{}

func (ListInteractedProvidersMessage) Type() string { return TypeListInteractedProviders }

func (ListInteractedProvidersMessage) Validate() error { return nil }
