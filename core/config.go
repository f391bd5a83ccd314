package core

import (
	"fmt"
	"strings"
)

const defaultActivationTimeoutMS = 5000

// TrustedExtensionsConfig mirrors the two shapes the host product config
// supports: a flat list that trusts extensions for every provider, and a map
// keyed by provider id.
type TrustedExtensionsConfig struct {
	Global     []string            `koanf:"global" mapstructure:"global"`
	ByProvider map[string][]string `koanf:"by_provider" mapstructure:"by_provider"`
}

type Config struct {
	ServiceName string `koanf:"service_name" mapstructure:"service_name"`
	// ActivationTimeoutMS bounds the wait for an out-of-process provider to
	// register after its activation event fires.
	ActivationTimeoutMS int                     `koanf:"activation_timeout_ms" mapstructure:"activation_timeout_ms"`
	Trusted             TrustedExtensionsConfig `koanf:"trusted_extensions" mapstructure:"trusted_extensions"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:         "authsessions",
		ActivationTimeoutMS: defaultActivationTimeoutMS,
		Trusted:             TrustedExtensionsConfig{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.ActivationTimeoutMS < 0 {
		return fmt.Errorf("core: activation_timeout_ms must be >= 0")
	}
	return nil
}
