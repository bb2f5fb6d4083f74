// Package provider implements the channel providers that deliver rendered
// notifications: Postmark email, HTTP SMS and push gateways, signed webhooks
// and the in-app inbox.
package provider

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/usecase/notify"
)

// Config holds the credentials and limits of every channel provider.
// A channel without Enabled set has no provider and its deliveries fail
// with ProviderNotAvailableError.
type Config struct {
	// DryRun replaces every enabled provider with a NoopProvider.
	DryRun bool `env:"PROVIDER_DRY_RUN" envDefault:"false"`

	Email   EmailConfig   `envPrefix:"EMAIL_"`
	SMS     SMSConfig     `envPrefix:"SMS_"`
	Push    PushConfig    `envPrefix:"PUSH_"`
	Webhook WebhookConfig `envPrefix:"WEBHOOK_"`
	InApp   InAppConfig   `envPrefix:"INAPP_"`
}

// EmailConfig configures the Postmark email provider.
type EmailConfig struct {
	Enabled      bool          `env:"ENABLED" envDefault:"false"`
	ServerToken  string        `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string        `env:"POSTMARK_ACCOUNT_TOKEN"`
	BaseURL      string        `env:"POSTMARK_BASE_URL"`
	From         string        `env:"FROM"`
	ReplyTo      string        `env:"REPLY_TO"`
	TrackOpens   bool          `env:"TRACK_OPENS" envDefault:"true"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RateLimit    float64       `env:"RATE_LIMIT" envDefault:"10"`
	Burst        int           `env:"BURST" envDefault:"20"`
}

// SMSConfig configures the SMS gateway.
type SMSConfig struct {
	Enabled   bool          `env:"ENABLED" envDefault:"false"`
	URL       string        `env:"GATEWAY_URL"`
	APIKey    string        `env:"API_KEY"`
	From      string        `env:"FROM"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RateLimit float64       `env:"RATE_LIMIT" envDefault:"5"`
	Burst     int           `env:"BURST" envDefault:"10"`
}

// PushConfig configures the push gateway.
type PushConfig struct {
	Enabled   bool          `env:"ENABLED" envDefault:"false"`
	URL       string        `env:"GATEWAY_URL"`
	APIKey    string        `env:"API_KEY"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RateLimit float64       `env:"RATE_LIMIT" envDefault:"50"`
	Burst     int           `env:"BURST" envDefault:"100"`
}

// WebhookConfig configures outbound webhooks.
type WebhookConfig struct {
	Enabled        bool          `env:"ENABLED" envDefault:"false"`
	SigningSecret  string        `env:"SIGNING_SECRET"`
	DenyPrivateIPs bool          `env:"DENY_PRIVATE_IPS" envDefault:"true"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RateLimit      float64       `env:"RATE_LIMIT" envDefault:"20"`
	Burst          int           `env:"BURST" envDefault:"40"`
}

// InAppConfig configures the in-app inbox.
type InAppConfig struct {
	Enabled       bool   `env:"ENABLED" envDefault:"true"`
	ChannelPrefix string `env:"CHANNEL_PREFIX" envDefault:"inbox:"`
}

// LoadConfig parses provider configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse provider config: %w", err)
	}
	return cfg, nil
}

// Build constructs the dispatch table for every enabled channel.
// pub receives live inbox updates and may be nil.
func Build(cfg Config, pub Publisher) (notify.Providers, error) {
	var (
		ps  notify.Providers
		err error
	)

	if cfg.DryRun {
		if cfg.Email.Enabled {
			ps.Email = NewNoopProvider(entity.ChannelEmail)
		}
		if cfg.SMS.Enabled {
			ps.SMS = NewNoopProvider(entity.ChannelSMS)
		}
		if cfg.Push.Enabled {
			ps.Push = NewNoopProvider(entity.ChannelPush)
		}
		if cfg.Webhook.Enabled {
			ps.Webhook = NewNoopProvider(entity.ChannelWebhook)
		}
		if cfg.InApp.Enabled {
			ps.InApp = NewNoopProvider(entity.ChannelInApp)
		}
		return ps, nil
	}

	if cfg.Email.Enabled {
		if ps.Email, err = newEmail(cfg.Email); err != nil {
			return notify.Providers{}, err
		}
	}
	if cfg.SMS.Enabled {
		if ps.SMS, err = newSMS(cfg.SMS); err != nil {
			return notify.Providers{}, err
		}
	}
	if cfg.Push.Enabled {
		if ps.Push, err = newPush(cfg.Push); err != nil {
			return notify.Providers{}, err
		}
	}
	if cfg.Webhook.Enabled {
		ps.Webhook = NewWebhookProvider(cfg.Webhook)
	}
	if cfg.InApp.Enabled {
		ps.InApp = NewInAppProvider(pub, cfg.InApp.ChannelPrefix)
	}
	return ps, nil
}

// The constructors below return the interface so a failed construction
// yields a nil notify.Provider rather than a typed nil.

func newEmail(cfg EmailConfig) (notify.Provider, error) {
	p, err := NewEmailProvider(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newSMS(cfg SMSConfig) (notify.Provider, error) {
	p, err := NewSMSProvider(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newPush(cfg PushConfig) (notify.Provider, error) {
	p, err := NewPushProvider(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}
