package services

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Rule maps a trigger to an ordered action list.
type Rule struct {
	Key         string   `json:"key"`
	Trigger     string   `json:"trigger"`
	Description string   `json:"description"`
	Actions     []Action `json:"-"`
}

// ActionTypes lists the rule's action tags in execution order.
func (r Rule) ActionTypes() []ActionType {
	out := make([]ActionType, len(r.Actions))
	for i, a := range r.Actions {
		out[i] = a.Type()
	}
	return out
}

// Feature is a per-workspace switch that gates a class of actions.
type Feature struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

const (
	FeatureCustomerEmails     = "customer_emails"
	FeatureStaffSMSAlerts     = "staff_sms_alerts"
	FeatureAutoThreadCreation = "auto_thread_creation"
	FeatureExecutionLogging   = "execution_logging"

	featureKeyPrefix = "feature:"
)

// DefaultRules is the static rule table in registry order.
func DefaultRules() []Rule {
	actions := defaultRuleActions()
	rules := []Rule{
		{Key: "booking_confirmation", Trigger: "booking.confirmed", Description: "Send confirmation email and system notification when booking is confirmed"},
		{Key: "new_contact_welcome", Trigger: "contact.created", Description: "Send welcome email to new contact"},
		{Key: "booking_cancellation", Trigger: "booking.cancelled", Description: "Send cancellation email and update thread when booking is cancelled"},
		{Key: "form_notification", Trigger: "form.submitted", Description: "Notify staff of new form submission via email and inbox"},
		{Key: "inventory_low_alert", Trigger: "inventory.low_stock", Description: "Create alert and notify staff when stock falls below threshold"},
	}
	for i := range rules {
		rules[i].Actions = actions[rules[i].Key]
	}
	return rules
}

func DefaultFeatures() []Feature {
	return []Feature{
		{Key: FeatureCustomerEmails, Label: "Customer Emails", Description: "Send confirmation & welcome emails to customers", Category: "notifications"},
		{Key: FeatureStaffSMSAlerts, Label: "Staff SMS Alerts", Description: "Send SMS to staff on low inventory", Category: "notifications"},
		{Key: FeatureAutoThreadCreation, Label: "Auto Thread Creation", Description: "Create conversation threads on bookings & form submissions", Category: "workflow"},
		{Key: FeatureExecutionLogging, Label: "Detailed Execution Logs", Description: "Store the event payload with every execution record", Category: "observability"},
	}
}

// RuleRegistry is the read-only rule table plus per-workspace overrides for
// rules and feature flags.
type RuleRegistry struct {
	rules    []Rule
	byKey    map[string]int
	features []Feature
	toggles  ToggleStore
	logger   *logrus.Logger
}

func NewRuleRegistry(toggles ToggleStore, logger *logrus.Logger) *RuleRegistry {
	return NewRuleRegistryWithRules(DefaultRules(), toggles, logger)
}

func NewRuleRegistryWithRules(rules []Rule, toggles ToggleStore, logger *logrus.Logger) *RuleRegistry {
	if logger == nil {
		logger = logrus.New()
	}
	if toggles == nil {
		toggles = NewMemoryToggleStore()
	}
	byKey := make(map[string]int, len(rules))
	for i, r := range rules {
		byKey[r.Key] = i
	}
	return &RuleRegistry{
		rules:    rules,
		byKey:    byKey,
		features: DefaultFeatures(),
		toggles:  toggles,
		logger:   logger,
	}
}

func (r *RuleRegistry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

func (r *RuleRegistry) Rule(key string) (Rule, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return Rule{}, false
	}
	return r.rules[i], true
}

// RulesForTrigger returns matching rules in registry order.
func (r *RuleRegistry) RulesForTrigger(trigger string) []Rule {
	var out []Rule
	for _, rule := range r.rules {
		if rule.Trigger == trigger {
			out = append(out, rule)
		}
	}
	return out
}

// IsEnabled defaults to true, including when the toggle store fails.
func (r *RuleRegistry) IsEnabled(ctx context.Context, workspaceID uint, ruleKey string) bool {
	return r.lookup(ctx, workspaceID, ruleKey)
}

func (r *RuleRegistry) SetEnabled(ctx context.Context, workspaceID uint, ruleKey string, enabled bool) error {
	if _, ok := r.byKey[ruleKey]; !ok {
		return ErrRuleNotFound
	}
	return r.toggles.Set(ctx, workspaceID, ruleKey, enabled)
}

// ClearOverride drops the workspace override so the rule is back to default.
func (r *RuleRegistry) ClearOverride(ctx context.Context, workspaceID uint, ruleKey string) error {
	if _, ok := r.byKey[ruleKey]; !ok {
		return ErrRuleNotFound
	}
	return r.toggles.Clear(ctx, workspaceID, ruleKey)
}

func (r *RuleRegistry) Features() []Feature {
	out := make([]Feature, len(r.features))
	copy(out, r.features)
	return out
}

func (r *RuleRegistry) FeatureEnabled(ctx context.Context, workspaceID uint, name string) bool {
	return r.lookup(ctx, workspaceID, featureKeyPrefix+name)
}

func (r *RuleRegistry) SetFeature(ctx context.Context, workspaceID uint, name string, enabled bool) error {
	if !r.hasFeature(name) {
		return ErrFeatureNotFound
	}
	return r.toggles.Set(ctx, workspaceID, featureKeyPrefix+name, enabled)
}

func (r *RuleRegistry) hasFeature(name string) bool {
	for _, f := range r.features {
		if f.Key == name {
			return true
		}
	}
	return false
}

func (r *RuleRegistry) lookup(ctx context.Context, workspaceID uint, key string) bool {
	enabled, found, err := r.toggles.Get(ctx, workspaceID, key)
	if err != nil {
		r.logger.WithFields(logrus.Fields{"workspace_id": workspaceID, "key": key}).
			Warnf("toggle lookup failed, assuming enabled: %v", err)
		return true
	}
	if !found {
		return true
	}
	return enabled
}
