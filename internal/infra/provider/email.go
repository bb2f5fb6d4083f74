package provider

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/mail"
	"strings"

	"github.com/mrz1836/postmark"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/usecase/notify"
)

// Postmark API error codes that matter for classification.
// https://postmarkapp.com/developer/api/overview#error-codes
const (
	postmarkBadToken          = 10
	postmarkInvalidRequest    = 300
	postmarkSenderNotFound    = 400
	postmarkNotAllowedToSend  = 405
	postmarkInactiveRecipient = 406
	postmarkAccountPending    = 412
)

const defaultSubject = "Notification"

// EmailProvider sends email through Postmark's transactional API.
// Delivery and engagement come back later as webhooks, so a successful send
// leaves the record in sent.
type EmailProvider struct {
	cfg     EmailConfig
	client  *postmark.Client
	limiter *RateLimiter
}

// NewEmailProvider creates a Postmark-backed email provider.
func NewEmailProvider(cfg EmailConfig) (*EmailProvider, error) {
	if cfg.ServerToken == "" {
		return nil, errors.New("email provider: postmark server token is required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("email provider: invalid sender %q: %w", cfg.From, err)
	}

	client := postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	return &EmailProvider{
		cfg:     cfg,
		client:  client,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.Burst),
	}, nil
}

// Channel implements notify.Provider.
func (p *EmailProvider) Channel() entity.Channel { return entity.ChannelEmail }

// Send implements notify.Provider.
func (p *EmailProvider) Send(ctx context.Context, msg notify.Message) (notify.SendResult, error) {
	to, err := mail.ParseAddress(msg.Recipient)
	if err != nil {
		return notify.SendResult{}, &entity.NotificationSendError{
			Channel: entity.ChannelEmail,
			Code:    "invalid_recipient",
			Err:     fmt.Errorf("parse address %q: %w", msg.Recipient, err),
		}
	}

	subject := subjectOf(msg.Subject)
	if subject == "" {
		subject = defaultSubject
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return notify.SendResult{}, transient(entity.ChannelEmail, fmt.Errorf("rate limiter: %w", err))
	}

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:       p.cfg.From,
		ReplyTo:    p.cfg.ReplyTo,
		To:         to.Address,
		Subject:    subject,
		Tag:        string(msg.Type),
		TextBody:   msg.Body,
		HTMLBody:   htmlBody(msg.Body),
		TrackOpens: p.cfg.TrackOpens,
	})
	if err != nil {
		return notify.SendResult{}, transient(entity.ChannelEmail, fmt.Errorf("postmark request: %w", err))
	}
	if resp.ErrorCode > 0 {
		return notify.SendResult{}, postmarkError(int64(resp.ErrorCode), resp.Message)
	}
	return notify.SendResult{ProviderMessageID: resp.MessageID}, nil
}

// postmarkError classifies a Postmark API error code.
func postmarkError(code int64, message string) error {
	err := fmt.Errorf("postmark error %d: %s", code, message)
	switch code {
	case postmarkInvalidRequest, postmarkInactiveRecipient:
		return &entity.NotificationSendError{
			Channel: entity.ChannelEmail,
			Code:    fmt.Sprintf("postmark_%d", code),
			Err:     err,
		}
	case postmarkBadToken, postmarkSenderNotFound, postmarkNotAllowedToSend, postmarkAccountPending:
		return &entity.ProviderNotAvailableError{Channel: entity.ChannelEmail, Err: err}
	default:
		return &entity.NotificationDeliveryError{Channel: entity.ChannelEmail, Err: err}
	}
}

// htmlBody renders a plain text body as minimal HTML.
func htmlBody(text string) string {
	escaped := html.EscapeString(text)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}
