package notify

import "errors"

// Sentinel errors for notify use case operations.
var (
	// ErrNotDispatchable indicates that the notification is cancelled, expired
	// or otherwise terminal and will not be sent.
	ErrNotDispatchable = errors.New("notification is not dispatchable")

	// ErrNoEligibleChannel is stored as the failure reason when every requested
	// channel is disabled by the recipient's preferences.
	ErrNoEligibleChannel = errors.New("no eligible channel")

	// ErrNoProvider indicates that no provider is configured for the channel.
	ErrNoProvider = errors.New("no provider configured for channel")

	// ErrMissingRecipient indicates that the recipient has no address for the channel.
	ErrMissingRecipient = errors.New("recipient has no address for channel")

	// ErrUnknownEvent indicates an engagement event type that cannot be recorded.
	ErrUnknownEvent = errors.New("unknown engagement event")

	// ErrShuttingDown indicates that the dispatcher no longer accepts work.
	ErrShuttingDown = errors.New("dispatcher is shutting down")
)
