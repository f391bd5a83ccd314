package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateSessionMessage]           = (*CreateSessionCommand)(nil)
	_ gocmd.Commander[RemoveSessionMessage]           = (*RemoveSessionCommand)(nil)
	_ gocmd.Commander[UpdateAllowedExtensionsMessage] = (*UpdateAllowedExtensionsCommand)(nil)
	_ gocmd.Commander[RemoveAllowedExtensionsMessage] = (*RemoveAllowedExtensionsCommand)(nil)
	_ gocmd.Commander[ClearSessionPreferenceMessage]  = (*ClearSessionPreferenceCommand)(nil)
	_ gocmd.Commander[RemoveDynamicProviderMessage]   = (*RemoveDynamicProviderCommand)(nil)
)
