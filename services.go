package authsessions

import "github.com/goliatone/go-authsessions/core"

type Config = core.Config

type TrustedExtensionsConfig = core.TrustedExtensionsConfig

type Option = core.Option

type Service = core.Service

type Session = core.Session
type SessionAccount = core.SessionAccount
type SessionOptions = core.SessionOptions
type GetSessionRequest = core.GetSessionRequest
type SessionChangeEvent = core.SessionChangeEvent

type Provider = core.Provider
type Registry = core.Registry
type ProviderRegistry = core.ProviderRegistry
type DeclaredProvider = core.DeclaredProvider
type DynamicProviderDelegate = core.DynamicProviderDelegate
type DynamicProviderRequest = core.DynamicProviderRequest
type DynamicProviderStore = core.DynamicProviderStore
type DynamicProviderInfo = core.DynamicProviderInfo

type AccessLedger = core.AccessLedger
type AccessEntry = core.AccessEntry
type UsageTracker = core.UsageTracker
type UsageRecord = core.UsageRecord

type StateStore = core.StateStore
type SecretStore = core.SecretStore
type SecretProvider = core.SecretProvider
type UserInterface = core.UserInterface
type Activator = core.Activator
type TokenValidator = core.TokenValidator
type MetricsRecorder = core.MetricsRecorder
type Logger = core.Logger

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithErrorFactory         = core.WithErrorFactory
	WithErrorMapper          = core.WithErrorMapper
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithRegistry             = core.WithRegistry
	WithStateStore           = core.WithStateStore
	WithSecretStore          = core.WithSecretStore
	WithUserInterface        = core.WithUserInterface
	WithActivator            = core.WithActivator
	WithAccountEnumerator    = core.WithAccountEnumerator
	WithTokenValidator       = core.WithTokenValidator
	WithDynamicProviderStore = core.WithDynamicProviderStore
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func NewProviderRegistry(opts ...core.RegistryOption) *ProviderRegistry {
	return core.NewProviderRegistry(opts...)
}
