package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notify-dispatch/internal/domain/entity"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.DryRun)
	assert.False(t, cfg.Email.Enabled)
	assert.True(t, cfg.Email.TrackOpens)
	assert.Equal(t, 10*time.Second, cfg.SMS.Timeout)
	assert.True(t, cfg.Webhook.DenyPrivateIPs)
	assert.True(t, cfg.InApp.Enabled)
	assert.Equal(t, "inbox:", cfg.InApp.ChannelPrefix)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("EMAIL_ENABLED", "true")
	t.Setenv("EMAIL_POSTMARK_SERVER_TOKEN", "pm-server")
	t.Setenv("EMAIL_FROM", "noreply@example.com")
	t.Setenv("SMS_ENABLED", "true")
	t.Setenv("SMS_GATEWAY_URL", "https://sms.example.com/v1/messages")
	t.Setenv("SMS_RATE_LIMIT", "2.5")
	t.Setenv("WEBHOOK_SIGNING_SECRET", "s3cret")
	t.Setenv("PUSH_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.Email.Enabled)
	assert.Equal(t, "pm-server", cfg.Email.ServerToken)
	assert.Equal(t, "https://sms.example.com/v1/messages", cfg.SMS.URL)
	assert.InDelta(t, 2.5, cfg.SMS.RateLimit, 1e-9)
	assert.Equal(t, "s3cret", cfg.Webhook.SigningSecret)
	assert.Equal(t, 3*time.Second, cfg.Push.Timeout)
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Setenv("SMS_TIMEOUT", "soon")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestBuild(t *testing.T) {
	t.Run("only enabled channels get a provider", func(t *testing.T) {
		ps, err := Build(Config{
			SMS:     SMSConfig{Enabled: true, URL: "https://sms.example.com"},
			Webhook: WebhookConfig{Enabled: true},
			InApp:   InAppConfig{Enabled: true},
		}, nil)
		require.NoError(t, err)

		assert.Equal(t, []entity.Channel{entity.ChannelSMS, entity.ChannelInApp, entity.ChannelWebhook}, ps.Configured())
		assert.IsType(t, &SMSProvider{}, ps.SMS)
		assert.IsType(t, &InAppProvider{}, ps.InApp)
		assert.Nil(t, ps.Email)
	})

	t.Run("dry run swaps in noop providers", func(t *testing.T) {
		ps, err := Build(Config{
			DryRun: true,
			Email:  EmailConfig{Enabled: true},
			Push:   PushConfig{Enabled: true},
		}, nil)
		require.NoError(t, err)

		require.IsType(t, &NoopProvider{}, ps.Email)
		assert.Equal(t, entity.ChannelPush, ps.Push.Channel())
		assert.Nil(t, ps.InApp)
	})

	t.Run("invalid provider config fails startup", func(t *testing.T) {
		_, err := Build(Config{Email: EmailConfig{Enabled: true, From: "noreply@example.com"}}, nil)
		require.Error(t, err)

		_, err = Build(Config{Push: PushConfig{Enabled: true}}, nil)
		require.Error(t, err)
	})
}
