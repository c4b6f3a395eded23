package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MockEmail logs and records messages instead of sending them.
type MockEmail struct {
	mu     sync.Mutex
	sent   []SentMessage
	logger *logrus.Logger
}

func NewMockEmail(logger *logrus.Logger) *MockEmail {
	if logger == nil {
		logger = logrus.New()
	}
	return &MockEmail{logger: logger}
}

func (m *MockEmail) Name() string { return "mock" }

func (m *MockEmail) Send(_ context.Context, to, subject, body string) (bool, error) {
	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{To: to, Subject: subject, Body: body, SentAt: time.Now()})
	m.mu.Unlock()
	m.logger.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("mock email sent")
	return true, nil
}

func (m *MockEmail) Health(context.Context) bool { return true }

// Sent returns a copy of everything recorded so far.
func (m *MockEmail) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// SMTPEmail sends through an SMTP server over implicit TLS.
type SMTPEmail struct {
	cfg    SMTPConfig
	logger *logrus.Logger
	// dial is swapped in tests.
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

func NewSMTPEmail(cfg SMTPConfig, logger *logrus.Logger) *SMTPEmail {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	p := &SMTPEmail{cfg: cfg, logger: logger}
	p.dial = p.dialTLS
	return p
}

func (p *SMTPEmail) Name() string { return "smtp" }

func (p *SMTPEmail) addr() string {
	return net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
}

func (p *SMTPEmail) dialTLS(ctx context.Context, addr string) (net.Conn, error) {
	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: p.cfg.Timeout},
		Config:    &tls.Config{ServerName: p.cfg.Host, MinVersion: tls.VersionTLS12},
	}
	return d.DialContext(ctx, "tcp", addr)
}

func (p *SMTPEmail) sender() string {
	if p.cfg.From != "" {
		return p.cfg.From
	}
	return p.cfg.User
}

func (p *SMTPEmail) Send(ctx context.Context, to, subject, body string) (bool, error) {
	if strings.TrimSpace(to) == "" {
		return false, fmt.Errorf("smtp: empty recipient")
	}
	conn, err := p.dial(ctx, p.addr())
	if err != nil {
		return false, fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(p.cfg.Timeout))
	}

	c, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return false, fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if p.cfg.User != "" {
		if err := c.Auth(smtp.PlainAuth("", p.cfg.User, p.cfg.Password, p.cfg.Host)); err != nil {
			return false, fmt.Errorf("smtp auth: %w", err)
		}
	}
	from := p.sender()
	if err := c.Mail(from); err != nil {
		return false, fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return false, fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return false, fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMIME(from, to, subject, body)); err != nil {
		return false, fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return false, fmt.Errorf("smtp close data: %w", err)
	}
	if err := c.Quit(); err != nil {
		p.logger.Debugf("smtp quit: %v", err)
	}
	p.logger.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("smtp email sent")
	return true, nil
}

func (p *SMTPEmail) Health(ctx context.Context) bool {
	if p.cfg.Host == "" {
		return false
	}
	conn, err := p.dial(ctx, p.addr())
	if err != nil {
		return false
	}
	c, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		conn.Close()
		return false
	}
	defer c.Close()
	return c.Noop() == nil
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerValue folds a value onto one line so payload text cannot start new
// headers, then Q-encodes it when it is not plain ASCII.
func headerValue(v string) string {
	return mime.QEncoding.Encode("utf-8", headerBreaks.Replace(v))
}

func buildMIME(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + headerBreaks.Replace(from) + "\r\n")
	b.WriteString("To: " + headerBreaks.Replace(to) + "\r\n")
	b.WriteString("Subject: " + headerValue(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
