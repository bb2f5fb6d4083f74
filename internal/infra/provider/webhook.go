package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"notify-dispatch/internal/domain/entity"
	"notify-dispatch/internal/usecase/notify"
)

// Webhook request headers.
const (
	HeaderSignature = "X-Notify-Signature"
	HeaderTimestamp = "X-Notify-Timestamp"
	HeaderMessageID = "X-Message-Id"
)

// WebhookProvider posts the rendered notification to the recipient's URL.
// A 2xx reply is a synchronous delivery confirmation.
type WebhookProvider struct {
	cfg    WebhookConfig
	sender *httpSender
	now    func() time.Time
}

// WebhookPayload is the JSON body posted to webhook recipients.
type WebhookPayload struct {
	DeliveryID     string         `json:"delivery_id"`
	NotificationID string         `json:"notification_id"`
	Type           string         `json:"type"`
	Priority       string         `json:"priority"`
	Subject        string         `json:"subject,omitempty"`
	Body           string         `json:"body"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	SentAt         time.Time      `json:"sent_at"`
}

// NewWebhookProvider creates a webhook provider.
func NewWebhookProvider(cfg WebhookConfig) *WebhookProvider {
	p := &WebhookProvider{
		cfg:    cfg,
		sender: newHTTPSender(entity.ChannelWebhook, cfg.Timeout, cfg.RateLimit, cfg.Burst),
		now:    func() time.Time { return time.Now().UTC() },
	}
	if cfg.SigningSecret != "" {
		p.sender.decorate = p.sign
	}
	return p
}

// Channel implements notify.Provider.
func (p *WebhookProvider) Channel() entity.Channel { return entity.ChannelWebhook }

// Send implements notify.Provider.
func (p *WebhookProvider) Send(ctx context.Context, msg notify.Message) (notify.SendResult, error) {
	if err := validateWebhookURL(ctx, msg.Recipient, p.cfg.DenyPrivateIPs); err != nil {
		return notify.SendResult{}, err
	}

	_, header, err := p.sender.post(ctx, msg.Recipient, WebhookPayload{
		DeliveryID:     msg.DeliveryID,
		NotificationID: msg.NotificationID,
		Type:           string(msg.Type),
		Priority:       string(msg.Priority),
		Subject:        subjectOf(msg.Subject),
		Body:           msg.Body,
		Metadata:       msg.Metadata,
		SentAt:         p.now(),
	})
	if err != nil {
		return notify.SendResult{}, err
	}

	id := header.Get(HeaderMessageID)
	if id == "" {
		id = msg.DeliveryID
	}
	return notify.SendResult{ProviderMessageID: id, Delivered: true}, nil
}

// sign sets an HMAC-SHA256 over "<timestamp>.<body>" so receivers can verify
// origin and reject replays.
func (p *WebhookProvider) sign(req *http.Request, body []byte) {
	ts := strconv.FormatInt(p.now().Unix(), 10)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, "sha256="+Signature(p.cfg.SigningSecret, ts, body))
}

// Signature computes the hex HMAC-SHA256 of "<timestamp>.<body>".
func Signature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
