package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-authsessions/core"
)

const (
	TypeCreateSession           = "authsessions.command.session.create"
	TypeRemoveSession           = "authsessions.command.session.remove"
	TypeUpdateAllowedExtensions = "authsessions.command.access.update"
	TypeRemoveAllowedExtensions = "authsessions.command.access.remove"
	TypeClearSessionPreference  = "authsessions.command.preference.clear"
	TypeRemoveDynamicProvider   = "authsessions.command.dynamic_provider.remove"
)

type CreateSessionMessage struct {
	Request core.GetSessionRequest
}

func (CreateSessionMessage) Type() string { return TypeCreateSession }

func (m CreateSessionMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.Request.ExtensionID) == "" {
		return fmt.Errorf("command: extension id is required")
	}
	return nil
}

type RemoveSessionMessage struct {
	ProviderID string
	SessionID  string
}

func (RemoveSessionMessage) Type() string { return TypeRemoveSession }

func (m RemoveSessionMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.SessionID) == "" {
		return fmt.Errorf("command: session id is required")
	}
	return nil
}

type UpdateAllowedExtensionsMessage struct {
	ProviderID   string
	AccountLabel string
	Updates      []core.AccessEntry
}

func (UpdateAllowedExtensionsMessage) Type() string { return TypeUpdateAllowedExtensions }

func (m UpdateAllowedExtensionsMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.AccountLabel) == "" {
		return fmt.Errorf("command: account label is required")
	}
	if len(m.Updates) == 0 {
		return fmt.Errorf("command: at least one access entry is required")
	}
	for _, entry := range m.Updates {
		if strings.TrimSpace(entry.ID) == "" {
			return fmt.Errorf("command: access entry id is required")
		}
	}
	return nil
}

type RemoveAllowedExtensionsMessage struct {
	ProviderID   string
	AccountLabel string
}

func (RemoveAllowedExtensionsMessage) Type() string { return TypeRemoveAllowedExtensions }

func (m RemoveAllowedExtensionsMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	if strings.TrimSpace(m.AccountLabel) == "" {
		return fmt.Errorf("command: account label is required")
	}
	return nil
}

type ClearSessionPreferenceMessage struct {
	ExtensionID string
	ProviderID  string
	Scopes      []string
}

func (ClearSessionPreferenceMessage) Type() string { return TypeClearSessionPreference }

func (m ClearSessionPreferenceMessage) Validate() error {
	if strings.TrimSpace(m.ExtensionID) == "" {
		return fmt.Errorf("command: extension id is required")
	}
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	return nil
}

type RemoveDynamicProviderMessage struct {
	ProviderID string
}

func (RemoveDynamicProviderMessage) Type() string { return TypeRemoveDynamicProvider }

func (m RemoveDynamicProviderMessage) Validate() error {
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	return nil
}
