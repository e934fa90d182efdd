package core

import (
	"fmt"
	"strings"
	"time"
)

type CalendarAuthConfig struct {
	TenantID     string `koanf:"tenant_id" mapstructure:"tenant_id"`
	ClientID     string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string `koanf:"client_secret" mapstructure:"client_secret"`
	Scope        string `koanf:"scope" mapstructure:"scope"`
	TokenURL     string `koanf:"token_url" mapstructure:"token_url"`
}

type ATSConfig struct {
	BaseURL    string        `koanf:"base_url" mapstructure:"base_url"`
	APIKey     string        `koanf:"api_key" mapstructure:"api_key"`
	MaxRetries int           `koanf:"max_retries" mapstructure:"max_retries"`
	RetryDelay time.Duration `koanf:"retry_delay" mapstructure:"retry_delay"`
}

type WebhookConfig struct {
	Secret string `koanf:"secret" mapstructure:"secret"`
}

type JobsConfig struct {
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	BatchLimit  int           `koanf:"batch_limit" mapstructure:"batch_limit"`
	StaleLease  time.Duration `koanf:"stale_lease" mapstructure:"stale_lease"`
}

type Config struct {
	ServiceName  string             `koanf:"service_name" mapstructure:"service_name"`
	CalendarAuth CalendarAuthConfig `koanf:"calendar_auth" mapstructure:"calendar_auth"`
	ATS          ATSConfig          `koanf:"ats" mapstructure:"ats"`
	Webhook      WebhookConfig      `koanf:"webhook" mapstructure:"webhook"`
	Jobs         JobsConfig         `koanf:"jobs" mapstructure:"jobs"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "schedsync",
		ATS: ATSConfig{
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		Jobs: JobsConfig{
			MaxAttempts: 5,
			BatchLimit:  25,
			StaleLease:  10 * time.Minute,
		},
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return NewConfigError("core: config is required")
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		return NewConfigError("core: service_name is required")
	}
	if c.ATS.MaxRetries < 0 {
		return NewConfigError(fmt.Sprintf("core: ats.max_retries must not be negative, got %d", c.ATS.MaxRetries))
	}
	if c.ATS.RetryDelay < 0 {
		return NewConfigError("core: ats.retry_delay must not be negative")
	}
	if c.Jobs.MaxAttempts < 1 {
		return NewConfigError(fmt.Sprintf("core: jobs.max_attempts must be at least 1, got %d", c.Jobs.MaxAttempts))
	}
	if c.Jobs.BatchLimit < 1 {
		return NewConfigError(fmt.Sprintf("core: jobs.batch_limit must be at least 1, got %d", c.Jobs.BatchLimit))
	}
	if c.Jobs.StaleLease <= 0 {
		return NewConfigError("core: jobs.stale_lease must be positive")
	}
	return nil
}
