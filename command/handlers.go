package command

import (
	"context"

	"github.com/goliatone/go-authsessions/core"
	gocmd "github.com/goliatone/go-command"
)

// MutatingService is the broker surface the command layer drives.
type MutatingService interface {
	CreateSession(ctx context.Context, req core.GetSessionRequest) (*core.Session, error)
	RemoveSession(ctx context.Context, providerID string, sessionID string) error
	ClearSessionPreference(ctx context.Context, extensionID string, providerID string, scopes []string) error
	RemoveDynamicProvider(ctx context.Context, providerID string) error
}

// AccessWriter mutates the access ledger.
type AccessWriter interface {
	UpdateAllowedExtensions(ctx context.Context, providerID string, accountLabel string, updates []core.AccessEntry) error
	RemoveAllowedExtensions(ctx context.Context, providerID string, accountLabel string) error
}

type CreateSessionCommand struct {
	service MutatingService
}

func NewCreateSessionCommand(service MutatingService) *CreateSessionCommand {
	return &CreateSessionCommand{service: service}
}

func (c *CreateSessionCommand) Execute(ctx context.Context, msg CreateSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.CreateSession(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RemoveSessionCommand struct {
	service MutatingService
}

func NewRemoveSessionCommand(service MutatingService) *RemoveSessionCommand {
	return &RemoveSessionCommand{service: service}
}

func (c *RemoveSessionCommand) Execute(ctx context.Context, msg RemoveSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.RemoveSession(ctx, msg.ProviderID, msg.SessionID)
}

type UpdateAllowedExtensionsCommand struct {
	access AccessWriter
}

func NewUpdateAllowedExtensionsCommand(access AccessWriter) *UpdateAllowedExtensionsCommand {
	return &UpdateAllowedExtensionsCommand{access: access}
}

func (c *UpdateAllowedExtensionsCommand) Execute(ctx context.Context, msg UpdateAllowedExtensionsMessage) error {
	if c == nil || c.access == nil {
		return commandDependencyError("command: access writer is required")
	}
	return c.access.UpdateAllowedExtensions(ctx, msg.ProviderID, msg.AccountLabel, msg.Updates)
}

type RemoveAllowedExtensionsCommand struct {
	access AccessWriter
}

func NewRemoveAllowedExtensionsCommand(access AccessWriter) *RemoveAllowedExtensionsCommand {
	return &RemoveAllowedExtensionsCommand{access: access}
}

func (c *RemoveAllowedExtensionsCommand) Execute(ctx context.Context, msg RemoveAllowedExtensionsMessage) error {
	if c == nil || c.access == nil {
		return commandDependencyError("command: access writer is required")
	}
	return c.access.RemoveAllowedExtensions(ctx, msg.ProviderID, msg.AccountLabel)
}

type ClearSessionPreferenceCommand struct {
	service MutatingService
}

func NewClearSessionPreferenceCommand(service MutatingService) *ClearSessionPreferenceCommand {
	return &ClearSessionPreferenceCommand{service: service}
}

func (c *ClearSessionPreferenceCommand) Execute(ctx context.Context, msg ClearSessionPreferenceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.ClearSessionPreference(ctx, msg.ExtensionID, msg.ProviderID, msg.Scopes)
}

type RemoveDynamicProviderCommand struct {
	service MutatingService
}

func NewRemoveDynamicProviderCommand(service MutatingService) *RemoveDynamicProviderCommand {
	return &RemoveDynamicProviderCommand{service: service}
}

func (c *RemoveDynamicProviderCommand) Execute(ctx context.Context, msg RemoveDynamicProviderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.RemoveDynamicProvider(ctx, msg.ProviderID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
