package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"coreops/internal/config"
	"coreops/internal/models"
	"coreops/pkg/notify"

	"github.com/sirupsen/logrus"
)

// FeatureGate answers per-workspace feature flag lookups.
type FeatureGate interface {
	FeatureEnabled(ctx context.Context, workspaceID uint, name string) bool
}

// ActionResult is the outcome of one action. Skipped actions are not failures.
type ActionResult struct {
	Type    ActionType
	Message string
	Skipped bool
	Err     error
}

type messageTemplate struct {
	subject string
	body    *template.Template
}

var builtinTemplates = map[string][2]string{
	"booking_confirmation": {"Booking Confirmed",
		"Hi {{or .contact_name \"there\"}},\n\nYour booking{{with .service_name}} for {{.}}{{end}}{{with .date}} on {{.}}{{end}}{{with .time}} at {{.}}{{end}} is confirmed.\n"},
	"welcome_email": {"Welcome!",
		"Hi {{or .contact_name \"there\"}},\n\nThanks for getting in touch. We will reply shortly.\n"},
	"booking_cancelled": {"Booking Cancelled",
		"Hi {{or .contact_name \"there\"}},\n\nYour booking{{with .date}} on {{.}}{{end}}{{with .time}} at {{.}}{{end}} has been cancelled.\n"},
	"form_notification": {"New Form Submission",
		"A new submission{{with .form_name}} for {{.}}{{end}} was received{{with .contact_name}} from {{.}}{{end}}.\n"},
	"low_stock_alert": {"",
		"Low stock: {{or .item_name \"an item\"}}{{with .quantity}} ({{.}} left){{end}}."},
}

func parseTemplates() map[string]*messageTemplate {
	out := make(map[string]*messageTemplate, len(builtinTemplates))
	for name, t := range builtinTemplates {
		out[name] = &messageTemplate{
			subject: t[0],
			body:    template.Must(template.New(name).Option("missingkey=zero").Parse(t[1])),
		}
	}
	return out
}

// ActionExecutor runs single actions against providers and the inbox store.
type ActionExecutor struct {
	email        notify.EmailProvider
	sms          notify.SMSProvider
	inbox        InboxStore
	features     FeatureGate
	emailBreaker *CircuitBreaker
	smsBreaker   *CircuitBreaker
	templates    map[string]*messageTemplate
	logger       *logrus.Logger
}

type ExecutorOption func(*ActionExecutor)

// WithCircuitBreakers puts one breaker in front of each provider.
func WithCircuitBreakers(cfg config.CircuitBreakerConfig) ExecutorOption {
	return func(e *ActionExecutor) {
		if !cfg.Enabled {
			return
		}
		e.emailBreaker = NewCircuitBreaker("email", cfg)
		e.smsBreaker = NewCircuitBreaker("sms", cfg)
	}
}

func NewActionExecutor(email notify.EmailProvider, sms notify.SMSProvider, inbox InboxStore, features FeatureGate, logger *logrus.Logger, opts ...ExecutorOption) *ActionExecutor {
	if logger == nil {
		logger = logrus.New()
	}
	if email == nil {
		email = notify.NewMockEmail(logger)
	}
	if sms == nil {
		sms = notify.NewMockSMS(logger)
	}
	e := &ActionExecutor{
		email:     email,
		sms:       sms,
		inbox:     inbox,
		features:  features,
		templates: parseTemplates(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one action. It never panics; any failure lands in Err.
func (e *ActionExecutor) Execute(ctx context.Context, action Action, payload Payload, workspaceID uint) (res ActionResult) {
	if action == nil {
		res.Err = fmt.Errorf("nil action")
		return res
	}
	res.Type = action.Type()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%s panicked: %v", res.Type, r)
		}
	}()

	if feature := gatingFeature(action); feature != "" && e.features != nil &&
		!e.features.FeatureEnabled(ctx, workspaceID, feature) {
		res.Skipped = true
		res.Message = "skipped: feature disabled"
		return res
	}

	switch a := action.(type) {
	case SendEmailAction:
		res.Message, res.Err = e.sendEmail(ctx, a, payload)
	case SendSMSAction:
		res.Message, res.Err = e.sendSMS(ctx, a, payload)
	case CreateAlertAction:
		res.Message, res.Err = e.createAlert(ctx, a, payload, workspaceID)
	case CreateConversationMessageAction:
		res.Message, res.Err = e.appendConversationMessage(ctx, a, payload, workspaceID)
	default:
		res.Err = fmt.Errorf("unknown action type %T", action)
	}
	return res
}

func gatingFeature(a Action) string {
	switch a.(type) {
	case SendEmailAction:
		return FeatureCustomerEmails
	case SendSMSAction:
		return FeatureStaffSMSAlerts
	case CreateConversationMessageAction:
		return FeatureAutoThreadCreation
	}
	return ""
}

// BreakerStats reports provider circuit state for the engine status view.
func (e *ActionExecutor) BreakerStats() []map[string]interface{} {
	var out []map[string]interface{}
	for _, cb := range []*CircuitBreaker{e.emailBreaker, e.smsBreaker} {
		if cb != nil {
			out = append(out, cb.Stats())
		}
	}
	return out
}

func (e *ActionExecutor) sendEmail(ctx context.Context, a SendEmailAction, payload Payload) (string, error) {
	to := payload.String("contact_email", "email")
	if to == "" {
		return "", fmt.Errorf("no contact_email in payload: %w", ErrMissingRecipient)
	}

	subject := payload.String("subject")
	if subject == "" {
		subject = a.Subject
	}
	tmpl := e.templates[a.Template]
	if subject == "" && tmpl != nil {
		subject = tmpl.subject
	}
	if subject == "" {
		subject = "Notification"
	}
	body := payload.String("body")
	if body == "" {
		body = e.render(tmpl, payload, "Message")
	}

	err := guarded(e.emailBreaker, func() error {
		ok, err := e.email.Send(ctx, to, subject, body)
		if err != nil {
			return err
		}
		if !ok {
			return ErrProviderRejected
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s email: %w", e.email.Name(), err)
	}
	return "Email sent", nil
}

func (e *ActionExecutor) sendSMS(ctx context.Context, a SendSMSAction, payload Payload) (string, error) {
	to := payload.String("contact_phone", "phone")
	if to == "" {
		return "", fmt.Errorf("no contact_phone in payload: %w", ErrMissingRecipient)
	}
	msg := payload.String("message", "body")
	if msg == "" {
		msg = e.render(e.templates[a.Template], payload, "")
	}

	err := guarded(e.smsBreaker, func() error {
		ok, err := e.sms.Send(ctx, to, msg)
		if err != nil {
			return err
		}
		if !ok {
			return ErrProviderRejected
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s sms: %w", e.sms.Name(), err)
	}
	return "SMS sent", nil
}

func (e *ActionExecutor) createAlert(ctx context.Context, a CreateAlertAction, payload Payload, workspaceID uint) (string, error) {
	if e.inbox == nil {
		return "", fmt.Errorf("no inbox store configured")
	}
	severity := a.Severity
	if severity == "" {
		severity = models.AlertSeverityInfo
	}
	title := payload.String("title")
	if title == "" {
		title = "Automation Alert"
	}
	message := payload.String("message")
	if message == "" {
		message = "Automated alert triggered"
	}
	alert := &models.Alert{WorkspaceID: workspaceID, Title: title, Message: message, Severity: severity}
	if err := e.inbox.CreateAlert(ctx, alert); err != nil {
		return "", err
	}
	return fmt.Sprintf("Alert %s created", title), nil
}

func (e *ActionExecutor) appendConversationMessage(ctx context.Context, a CreateConversationMessageAction, payload Payload, workspaceID uint) (string, error) {
	contactID, ok := payload.Uint("contact_id")
	if !ok {
		return "Skipped: no contact_id", nil
	}
	if e.inbox == nil {
		return "", fmt.Errorf("no inbox store configured")
	}
	channel := a.Channel
	if channel == "" {
		channel = models.ChannelSystem
	}
	subject := a.Subject
	if subject == "" {
		subject = payload.String("subject")
	}
	if subject == "" {
		subject = "Notification"
	}
	body := payload.String("body", "message")
	if body == "" {
		body = subject
	}
	if _, err := e.inbox.AppendSystemMessage(ctx, workspaceID, contactID, channel, subject, body); err != nil {
		return "", err
	}
	return "Conversation message added", nil
}

func (e *ActionExecutor) render(t *messageTemplate, payload Payload, fallback string) string {
	if t == nil {
		return fallback
	}
	var buf bytes.Buffer
	if err := t.body.Execute(&buf, map[string]interface{}(payload)); err != nil {
		e.logger.Warnf("render template %s: %v", t.body.Name(), err)
		return fallback
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		return s
	}
	return fallback
}

func guarded(cb *CircuitBreaker, fn func() error) error {
	if cb == nil {
		return fn()
	}
	return cb.Do(fn)
}
