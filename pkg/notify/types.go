// Package notify holds the outbound email and SMS provider clients used by
// automation actions.
package notify

import (
	"context"
	"time"
)

//go:generate mockgen -source=types.go -destination=mocks/notify_mock.go -package=mocks EmailProvider,SMSProvider

// EmailProvider delivers one email. A false return without error means the
// provider declined the message.
type EmailProvider interface {
	Name() string
	Send(ctx context.Context, to, subject, body string) (bool, error)
	Health(ctx context.Context) bool
}

// SMSProvider delivers one SMS.
type SMSProvider interface {
	Name() string
	Send(ctx context.Context, to, message string) (bool, error)
	Health(ctx context.Context) bool
}

// SMTPConfig SMTP over implicit TLS (port 465 style).
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	Timeout  time.Duration
}

// TwilioConfig Twilio REST messaging.
type TwilioConfig struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
	Timeout    time.Duration
}

// DefaultTwilioConfig returns the public API base with a sane timeout.
func DefaultTwilioConfig() *TwilioConfig {
	return &TwilioConfig{
		BaseURL: "https://api.twilio.com",
		Timeout: 10 * time.Second,
	}
}

// SentMessage is what the mock providers record.
type SentMessage struct {
	To      string    `json:"to"`
	Subject string    `json:"subject,omitempty"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// twilioMessageResponse is the subset of the Messages resource we read.
type twilioMessageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

type twilioErrorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}
