package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

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

// GoOptionsResolver layers runtime config over loaded config over defaults,
// with the higher scope winning per field.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
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
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	calendar := map[string]any{}
	setString(calendar, "tenant_id", cfg.CalendarAuth.TenantID, includeZero)
	setString(calendar, "client_id", cfg.CalendarAuth.ClientID, includeZero)
	setString(calendar, "client_secret", cfg.CalendarAuth.ClientSecret, includeZero)
	setString(calendar, "scope", cfg.CalendarAuth.Scope, includeZero)
	setString(calendar, "token_url", cfg.CalendarAuth.TokenURL, includeZero)
	if len(calendar) > 0 {
		layer["calendar_auth"] = calendar
	}

	ats := map[string]any{}
	setString(ats, "base_url", cfg.ATS.BaseURL, includeZero)
	setString(ats, "api_key", cfg.ATS.APIKey, includeZero)
	if includeZero || cfg.ATS.MaxRetries != 0 {
		ats["max_retries"] = cfg.ATS.MaxRetries
	}
	if includeZero || cfg.ATS.RetryDelay != 0 {
		ats["retry_delay"] = cfg.ATS.RetryDelay
	}
	if len(ats) > 0 {
		layer["ats"] = ats
	}

	webhook := map[string]any{}
	setString(webhook, "secret", cfg.Webhook.Secret, includeZero)
	if len(webhook) > 0 {
		layer["webhook"] = webhook
	}

	jobs := map[string]any{}
	if includeZero || cfg.Jobs.MaxAttempts != 0 {
		jobs["max_attempts"] = cfg.Jobs.MaxAttempts
	}
	if includeZero || cfg.Jobs.BatchLimit != 0 {
		jobs["batch_limit"] = cfg.Jobs.BatchLimit
	}
	if includeZero || cfg.Jobs.StaleLease != 0 {
		jobs["stale_lease"] = cfg.Jobs.StaleLease
	}
	if len(jobs) > 0 {
		layer["jobs"] = jobs
	}

	return layer
}

func setString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}
