package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

// ConfigProvider loads configuration on top of compiled defaults.
type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

// RawConfigLoader supplies raw configuration values, typically from
// the environment or a file.
type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

// OptionsResolver merges defaults, loaded config, and runtime
// overrides into the effective configuration.
type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticRawConfigLoader wraps a literal value map, mostly for tests
// and embedded deployments.
func NewStaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults < loaded < runtime with go-options
// and re-validates the merged result.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			layer[key] = value
		}
	}
	setString("environment", cfg.Environment)
	setString("domain", cfg.Domain)
	setString("actor_url", cfg.ActorURL)
	setString("public_key_url", cfg.PublicKeyURL)
	setString("private_key_pem", cfg.PrivateKeyPEM)
	setString("resolver", cfg.Resolver)

	delivery := map[string]any{}
	if includeZero || cfg.Delivery.PollInterval > 0 {
		delivery["poll_interval"] = cfg.Delivery.PollInterval
	}
	if includeZero || cfg.Delivery.BaseDelay > 0 {
		delivery["base_delay"] = cfg.Delivery.BaseDelay
	}
	if includeZero || cfg.Delivery.MaxAttempts > 0 {
		delivery["max_attempts"] = cfg.Delivery.MaxAttempts
	}
	if includeZero || cfg.Delivery.ResolveDelay > 0 {
		delivery["resolve_delay"] = cfg.Delivery.ResolveDelay
	}
	if includeZero || cfg.Delivery.RequestTimeout > 0 {
		delivery["request_timeout"] = cfg.Delivery.RequestTimeout
	}
	if len(delivery) > 0 {
		layer["delivery"] = delivery
	}
	return layer
}
