package notify

import (
	"context"
	"fmt"
	"strings"

	"notify-dispatch/internal/domain/entity"
)

// Metadata keys read by MetadataRecipients.
const (
	MetaEmail      = "email"
	MetaPhone      = "phone"
	MetaPushToken  = "push_token"
	MetaWebhookURL = "webhook_url"
)

// MetadataRecipients resolves channel addresses from the notification's
// metadata. In-app notifications are addressed to the recipient id.
type MetadataRecipients struct{}

// Resolve implements RecipientResolver.
func (MetadataRecipients) Resolve(_ context.Context, n entity.Notification, ch entity.Channel) (string, error) {
	var key string
	switch ch {
	case entity.ChannelInApp:
		return n.RecipientID, nil
	case entity.ChannelEmail:
		key = MetaEmail
	case entity.ChannelSMS:
		key = MetaPhone
	case entity.ChannelPush:
		key = MetaPushToken
	case entity.ChannelWebhook:
		key = MetaWebhookURL
	default:
		return "", missingRecipient(ch)
	}

	v, _ := n.Metadata[key].(string)
	if strings.TrimSpace(v) == "" {
		return "", missingRecipient(ch)
	}
	return v, nil
}

func missingRecipient(ch entity.Channel) error {
	return &entity.NotificationSendError{
		Channel: ch,
		Code:    "missing_recipient",
		Err:     fmt.Errorf("%w %s", ErrMissingRecipient, ch),
	}
}
