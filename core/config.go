package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
)

const (
	ResolverSession = "session"
	ResolverRDF     = "rdf"
)

// DeliveryConfig tunes the outbound delivery queue.
type DeliveryConfig struct {
	// PollInterval bounds how long an idle worker waits before
	// re-checking the queue without a notification.
	PollInterval time.Duration `koanf:"poll_interval" mapstructure:"poll_interval"`
	// BaseDelay is the first retry delay; each retry multiplies by 3.
	BaseDelay time.Duration `koanf:"base_delay" mapstructure:"base_delay"`
	// MaxAttempts is the retry budget; reaching it drops the delivery.
	MaxAttempts int `koanf:"max_attempts" mapstructure:"max_attempts"`
	// ResolveDelay postpones the first attempt after inbox resolution
	// so same-tick deliveries can coalesce onto a shared inbox.
	ResolveDelay time.Duration `koanf:"resolve_delay" mapstructure:"resolve_delay"`
	// RequestTimeout bounds one outbound POST.
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type Config struct {
	// Environment selects public-reachability enforcement; anything but
	// "production" allows non-public fetch targets.
	Environment string `koanf:"environment" mapstructure:"environment"`
	// Domain is the exact Host header value we accept.
	Domain string `koanf:"domain" mapstructure:"domain"`
	// ActorURL identifies the local actor in outbound activities.
	ActorURL string `koanf:"actor_url" mapstructure:"actor_url"`
	// PublicKeyURL is the keyId stamped on outbound signatures.
	PublicKeyURL string `koanf:"public_key_url" mapstructure:"public_key_url"`
	// PrivateKeyPEM is the local RSA signing key.
	PrivateKeyPEM string `koanf:"private_key_pem" mapstructure:"private_key_pem"`
	// Resolver selects the document resolver variant.
	Resolver string `koanf:"resolver" mapstructure:"resolver"`

	Delivery DeliveryConfig `koanf:"delivery" mapstructure:"delivery"`
}

func DefaultConfig() Config {
	return Config{
		Environment: EnvironmentDevelopment,
		Resolver:    ResolverRDF,
		Delivery: DeliveryConfig{
			PollInterval:   time.Minute,
			BaseDelay:      10 * time.Second,
			MaxAttempts:    10,
			ResolveDelay:   2 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Domain) == "" {
		return fmt.Errorf("core: domain is required")
	}
	switch strings.TrimSpace(c.Resolver) {
	case "", ResolverSession, ResolverRDF:
	default:
		return fmt.Errorf("core: unknown resolver variant %q", c.Resolver)
	}
	if c.Delivery.MaxAttempts < 0 {
		return fmt.Errorf("core: delivery max_attempts must not be negative")
	}
	return nil
}

// Origin returns the HTTPS origin for the configured domain.
func (c Config) Origin() string {
	return "https://" + strings.TrimSpace(c.Domain)
}

// Production reports whether public-reachability checks are enforced.
func (c Config) Production() bool {
	return strings.TrimSpace(c.Environment) == EnvironmentProduction
}
