package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestMockEmail_RecordsMessages(t *testing.T) {
	m := NewMockEmail(quietLogger())

	ok, err := m.Send(context.Background(), "a@b.com", "Hi", "Body")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, m.Health(context.Background()))

	sent := m.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "a@b.com", sent[0].To)
	assert.Equal(t, "Hi", sent[0].Subject)

	// returned slice is a copy
	sent[0].To = "changed"
	assert.Equal(t, "a@b.com", m.Sent()[0].To)
}

func TestMockSMS_RecordsMessages(t *testing.T) {
	m := NewMockSMS(nil)

	ok, err := m.Send(context.Background(), "+15550001", strings.Repeat("x", 200))
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, m.Sent(), 1)
	assert.Equal(t, "mock", m.Name())
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 80))

	long := strings.Repeat("é", 100)
	got := preview(long, 80)
	assert.Equal(t, 80, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestDefaultTwilioConfig(t *testing.T) {
	cfg := DefaultTwilioConfig()
	if cfg.BaseURL == "" {
		t.Error("expected BaseURL to be set")
	}
	if cfg.Timeout == 0 {
		t.Error("expected Timeout to be set")
	}
}

func TestTwilioSMS_Send(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    interface{}
		wantOK  bool
		wantErr bool
	}{
		{name: "queued", status: http.StatusCreated, body: map[string]interface{}{"sid": "SM1", "status": "queued"}, wantOK: true},
		{name: "failed status", status: http.StatusCreated, body: map[string]interface{}{"sid": "SM2", "status": "failed"}, wantOK: false},
		{name: "api error", status: http.StatusBadRequest, body: map[string]interface{}{"code": 21211, "message": "invalid To"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
				user, pass, ok := r.BasicAuth()
				assert.True(t, ok)
				assert.Equal(t, "AC123", user)
				assert.Equal(t, "secret", pass)
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "+15550001", r.PostForm.Get("To"))
				assert.Equal(t, "+15559999", r.PostForm.Get("From"))
				assert.Equal(t, "low stock", r.PostForm.Get("Body"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			sms := NewTwilioSMS(&TwilioConfig{
				BaseURL:    srv.URL,
				AccountSID: "AC123",
				AuthToken:  "secret",
				From:       "+15559999",
				Timeout:    2 * time.Second,
			}, quietLogger())

			ok, err := sms.Send(context.Background(), "+15550001", "low stock")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestTwilioSMS_NotConfigured(t *testing.T) {
	sms := NewTwilioSMS(nil, quietLogger())

	ok, err := sms.Send(context.Background(), "+15550001", "hi")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, sms.Health(context.Background()))
}

func TestSMTPEmail_EmptyRecipient(t *testing.T) {
	p := NewSMTPEmail(SMTPConfig{Host: "localhost"}, quietLogger())

	ok, err := p.Send(context.Background(), "  ", "s", "b")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestSMTPEmail_HealthWithoutHost(t *testing.T) {
	p := NewSMTPEmail(SMTPConfig{}, quietLogger())
	assert.False(t, p.Health(context.Background()))
	assert.Equal(t, 465, p.cfg.Port)
}

func TestBuildMIME(t *testing.T) {
	msg := string(buildMIME("from@x.com", "to@y.com", "Subject line", "line1\nline2"))

	assert.Contains(t, msg, "From: from@x.com\r\n")
	assert.Contains(t, msg, "To: to@y.com\r\n")
	assert.Contains(t, msg, "Subject: Subject line\r\n")
	assert.True(t, strings.HasSuffix(msg, "line1\r\nline2"))
}

func TestBuildMIME_HeaderInjection(t *testing.T) {
	msg := string(buildMIME("ops@x.com", "a@b.com\nCc: other@evil.com", "Hi\r\nBcc: victim@evil.com", "body"))
	headers, _, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found)

	for _, line := range strings.Split(headers, "\r\n") {
		assert.False(t, strings.HasPrefix(line, "Bcc:"), line)
		assert.False(t, strings.HasPrefix(line, "Cc:"), line)
	}
	assert.Contains(t, headers, "Subject: Hi Bcc: victim@evil.com\r\n")
	assert.Len(t, strings.Split(headers, "\r\n"), 5)
}

func TestBuildMIME_EncodesNonASCIISubject(t *testing.T) {
	msg := string(buildMIME("ops@x.com", "a@b.com", "Réservation confirmée", "body"))
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.NotContains(t, msg, "Subject: Réservation")
}
