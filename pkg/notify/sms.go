package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MockSMS logs and records messages.
type MockSMS struct {
	mu     sync.Mutex
	sent   []SentMessage
	logger *logrus.Logger
}

func NewMockSMS(logger *logrus.Logger) *MockSMS {
	if logger == nil {
		logger = logrus.New()
	}
	return &MockSMS{logger: logger}
}

func (m *MockSMS) Name() string { return "mock" }

func (m *MockSMS) Send(_ context.Context, to, message string) (bool, error) {
	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{To: to, Body: message, SentAt: time.Now()})
	m.mu.Unlock()
	m.logger.WithFields(logrus.Fields{"to": to, "message": preview(message, 80)}).Info("mock sms sent")
	return true, nil
}

func (m *MockSMS) Health(context.Context) bool { return true }

// preview truncates s to at most n runes for log fields.
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func (m *MockSMS) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// TwilioSMS sends through the Twilio Messages REST resource.
type TwilioSMS struct {
	cfg        *TwilioConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewTwilioSMS(cfg *TwilioConfig, logger *logrus.Logger) *TwilioSMS {
	if cfg == nil {
		cfg = DefaultTwilioConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &TwilioSMS{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

func (t *TwilioSMS) Name() string { return "twilio" }

func (t *TwilioSMS) Send(ctx context.Context, to, message string) (bool, error) {
	if t.cfg.AccountSID == "" {
		t.logger.Warn("twilio sms not configured: empty account sid")
		return false, nil
	}
	if strings.TrimSpace(to) == "" {
		return false, fmt.Errorf("twilio: empty recipient")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.cfg.From)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(t.cfg.BaseURL, "/"), url.PathEscape(t.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return false, fmt.Errorf("read response body: %w", err)
	}
	t.logger.Debugf("twilio response: %d %s", resp.StatusCode, string(body))

	if resp.StatusCode >= 400 {
		var errResp twilioErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			return false, fmt.Errorf("twilio error [%d]: %s (code: %d)", resp.StatusCode, errResp.Message, errResp.Code)
		}
		return false, fmt.Errorf("twilio error [%d]", resp.StatusCode)
	}

	var msg twilioMessageResponse
	if err := json.Unmarshal(body, &msg); err != nil {
		return false, fmt.Errorf("decode twilio response: %w", err)
	}
	if msg.Status == "failed" || msg.Status == "undelivered" {
		return false, nil
	}
	t.logger.WithFields(logrus.Fields{"to": to, "sid": msg.SID}).Info("twilio sms queued")
	return true, nil
}

func (t *TwilioSMS) Health(context.Context) bool {
	return t.cfg.AccountSID != "" && t.cfg.AuthToken != ""
}
