package services

import "coreops/internal/models"

// ActionType tags the action variants for logs, metrics and the API.
type ActionType string

const (
	ActionSendEmail                 ActionType = "send_email"
	ActionSendSMS                   ActionType = "send_sms"
	ActionCreateAlert               ActionType = "create_alert"
	ActionCreateConversationMessage ActionType = "create_conversation_message"
)

// Action is one step of a rule. The set of implementations is closed; the
// executor switches over the concrete types.
type Action interface {
	Type() ActionType
	action()
}

// SendEmailAction mails the contact. Subject overrides the template subject.
type SendEmailAction struct {
	Template string
	Subject  string
}

// SendSMSAction texts the contact.
type SendSMSAction struct {
	Template string
}

// CreateAlertAction raises a workspace alert.
type CreateAlertAction struct {
	Severity string
}

// CreateConversationMessageAction appends a system message to the contact's
// latest conversation on Channel, creating the conversation if needed.
type CreateConversationMessageAction struct {
	Channel string
	Subject string
}

func (SendEmailAction) Type() ActionType                 { return ActionSendEmail }
func (SendSMSAction) Type() ActionType                   { return ActionSendSMS }
func (CreateAlertAction) Type() ActionType               { return ActionCreateAlert }
func (CreateConversationMessageAction) Type() ActionType { return ActionCreateConversationMessage }

func (SendEmailAction) action()                 {}
func (SendSMSAction) action()                   {}
func (CreateAlertAction) action()               {}
func (CreateConversationMessageAction) action() {}

func defaultRuleActions() map[string][]Action {
	return map[string][]Action{
		"booking_confirmation": {
			SendEmailAction{Template: "booking_confirmation"},
			CreateConversationMessageAction{Channel: models.ChannelSystem, Subject: "Booking Confirmed"},
		},
		"new_contact_welcome": {
			SendEmailAction{Template: "welcome_email", Subject: "Welcome!"},
		},
		"booking_cancellation": {
			SendEmailAction{Template: "booking_cancelled"},
			CreateConversationMessageAction{Channel: models.ChannelSystem, Subject: "Booking Cancelled"},
		},
		"form_notification": {
			SendEmailAction{Template: "form_notification"},
			CreateConversationMessageAction{Channel: models.ChannelForm, Subject: "New Form Submission"},
		},
		"inventory_low_alert": {
			CreateAlertAction{Severity: models.AlertSeverityWarning},
			SendSMSAction{Template: "low_stock_alert"},
		},
	}
}
