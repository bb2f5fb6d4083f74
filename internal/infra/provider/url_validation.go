package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"notify-dispatch/internal/domain/entity"
)

var (
	// ErrInvalidURL indicates a webhook recipient that is not an http(s) URL.
	ErrInvalidURL = errors.New("invalid webhook url")

	// ErrPrivateAddress indicates a webhook recipient resolving to an internal address.
	ErrPrivateAddress = errors.New("webhook url resolves to a private address")
)

// lookupIP is replaced in tests.
var lookupIP = func(ctx context.Context, host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(ctx, "ip", host)
}

// validateWebhookURL rejects URLs that are not http(s) and, when denyPrivate is
// set, hosts resolving to loopback, private or link-local addresses. Both are
// permanent rejections of the recipient.
func validateWebhookURL(ctx context.Context, raw string, denyPrivate bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return rejected(fmt.Errorf("%w: %v", ErrInvalidURL, err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return rejected(fmt.Errorf("%w: scheme %q not allowed", ErrInvalidURL, u.Scheme))
	}
	host := u.Hostname()
	if host == "" {
		return rejected(fmt.Errorf("%w: empty hostname", ErrInvalidURL))
	}
	if !denyPrivate {
		return nil
	}

	ips, err := lookupIP(ctx, host)
	if err != nil {
		// DNS may recover; let the retry budget decide.
		return &entity.NotificationDeliveryError{
			Channel: entity.ChannelWebhook,
			Err:     fmt.Errorf("resolve %s: %w", host, err),
		}
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return &entity.NotificationSendError{
				Channel: entity.ChannelWebhook,
				Code:    "private_address",
				Err:     fmt.Errorf("%w: %s resolves to %s", ErrPrivateAddress, host, ip),
			}
		}
	}
	return nil
}

func rejected(err error) error {
	return &entity.NotificationSendError{Channel: entity.ChannelWebhook, Code: "invalid_recipient", Err: err}
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
