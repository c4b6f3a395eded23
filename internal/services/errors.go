package services

import "errors"

var (
	ErrRuleNotFound        = errors.New("automation rule not found")
	ErrFeatureNotFound     = errors.New("feature flag not found")
	ErrAuditRecordNotFound = errors.New("audit record not found")

	// action failures
	ErrMissingRecipient = errors.New("missing recipient")
	ErrProviderRejected = errors.New("provider rejected message")
	ErrCircuitOpen      = errors.New("provider circuit open")

	ErrQueueFull = errors.New("automation queue full")

	// internal messaging
	ErrEmptyMessage   = errors.New("message content is empty")
	ErrMessageTooLong = errors.New("message content too long")
	ErrRateLimited    = errors.New("rate limit exceeded")
)
