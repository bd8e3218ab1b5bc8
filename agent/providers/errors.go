package providers

import "errors"

var (
	// ErrUnknownProvider is returned when a configuration names a provider
	// that no adapter serves.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrNoMessages is returned when a request carries no conversation.
	ErrNoMessages = errors.New("request has no messages")

	// ErrEmptyResponse is returned when the vendor answers without a choice.
	ErrEmptyResponse = errors.New("provider returned no choices")
)
