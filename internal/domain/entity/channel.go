package entity

// Channel identifies one delivery medium.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelInApp   Channel = "in_app"
	ChannelWebhook Channel = "webhook"
)

// AllChannels lists every channel known to this build in a stable order.
var AllChannels = []Channel{
	ChannelEmail,
	ChannelSMS,
	ChannelPush,
	ChannelInApp,
	ChannelWebhook,
}

// IsValid reports whether the channel is one of the known channels.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp, ChannelWebhook:
		return true
	default:
		return false
	}
}

func (c Channel) String() string { return string(c) }
