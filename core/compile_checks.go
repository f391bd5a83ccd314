package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Registry    = (*ProviderRegistry)(nil)
	_ StateStore  = (*MemoryStateStore)(nil)
	_ SecretStore = (*MemorySecretStore)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
