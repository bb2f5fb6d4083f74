package provider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/usecase/notify"
)

// maxSMSLength is the concatenated-SMS ceiling most gateways accept.
const maxSMSLength = 1600

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// SMSProvider sends text messages through an HTTP SMS gateway.
//
// Request:  POST {URL} {"to","from","body","reference"}
// Response: 2xx {"id": "<gateway message id>"}
//
// Handset delivery is reported later through a delivery receipt, so a
// successful send leaves the record in sent.
type SMSProvider struct {
	cfg    SMSConfig
	sender *httpSender
}

type smsPayload struct {
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
	Body      string `json:"body"`
	Reference string `json:"reference"`
}

// NewSMSProvider creates an SMS provider. URL is required.
func NewSMSProvider(cfg SMSConfig) (*SMSProvider, error) {
	if cfg.URL == "" {
		return nil, errors.New("sms provider: gateway url is required")
	}
	s := newHTTPSender(entity.ChannelSMS, cfg.Timeout, cfg.RateLimit, cfg.Burst)
	s.decorate = bearer(cfg.APIKey)
	return &SMSProvider{cfg: cfg, sender: s}, nil
}

// Channel implements notify.Provider.
func (p *SMSProvider) Channel() entity.Channel { return entity.ChannelSMS }

// Send implements notify.Provider.
func (p *SMSProvider) Send(ctx context.Context, msg notify.Message) (notify.SendResult, error) {
	if !e164.MatchString(msg.Recipient) {
		return notify.SendResult{}, &entity.NotificationSendError{
			Channel: entity.ChannelSMS,
			Code:    "invalid_recipient",
			Err:     fmt.Errorf("phone number %q is not in E.164 format", msg.Recipient),
		}
	}

	body := msg.Body
	if utf8.RuneCountInString(body) > maxSMSLength {
		body = string([]rune(body)[:maxSMSLength-len(truncationSuffix)]) + truncationSuffix
	}

	resp, _, err := p.sender.post(ctx, p.cfg.URL, smsPayload{
		To:        msg.Recipient,
		From:      p.cfg.From,
		Body:      body,
		Reference: msg.DeliveryID,
	})
	if err != nil {
		return notify.SendResult{}, err
	}
	return notify.SendResult{ProviderMessageID: messageID(resp, msg.DeliveryID)}, nil
}
