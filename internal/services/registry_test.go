package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	require.Len(t, rules, 5)

	keys := make([]string, len(rules))
	for i, r := range rules {
		keys[i] = r.Key
		assert.NotEmpty(t, r.Actions, "rule %s has no actions", r.Key)
	}
	assert.Equal(t, []string{
		"booking_confirmation",
		"new_contact_welcome",
		"booking_cancellation",
		"form_notification",
		"inventory_low_alert",
	}, keys)

	assert.Equal(t, []ActionType{ActionCreateAlert, ActionSendSMS}, rules[4].ActionTypes())
}

func TestRuleRegistry_RulesForTrigger(t *testing.T) {
	rules := append(DefaultRules(), Rule{Key: "second_booking_rule", Trigger: "booking.confirmed"})
	reg := NewRuleRegistryWithRules(rules, nil, quietLogger())

	got := reg.RulesForTrigger("booking.confirmed")
	require.Len(t, got, 2)
	assert.Equal(t, "booking_confirmation", got[0].Key)
	assert.Equal(t, "second_booking_rule", got[1].Key)

	assert.Empty(t, reg.RulesForTrigger("nothing.happened"))
}

func TestRuleRegistry_Toggles(t *testing.T) {
	ctx := context.Background()
	reg := NewRuleRegistry(NewMemoryToggleStore(), quietLogger())

	assert.True(t, reg.IsEnabled(ctx, 2, "inventory_low_alert"))

	require.NoError(t, reg.SetEnabled(ctx, 2, "inventory_low_alert", false))
	assert.False(t, reg.IsEnabled(ctx, 2, "inventory_low_alert"))
	assert.True(t, reg.IsEnabled(ctx, 3, "inventory_low_alert"))

	require.NoError(t, reg.ClearOverride(ctx, 2, "inventory_low_alert"))
	assert.True(t, reg.IsEnabled(ctx, 2, "inventory_low_alert"))

	assert.ErrorIs(t, reg.SetEnabled(ctx, 2, "nope", false), ErrRuleNotFound)
	assert.ErrorIs(t, reg.ClearOverride(ctx, 2, "nope"), ErrRuleNotFound)
}

func TestRuleRegistry_Features(t *testing.T) {
	ctx := context.Background()
	reg := NewRuleRegistry(nil, quietLogger())

	assert.True(t, reg.FeatureEnabled(ctx, 1, FeatureCustomerEmails))
	require.NoError(t, reg.SetFeature(ctx, 1, FeatureCustomerEmails, false))
	assert.False(t, reg.FeatureEnabled(ctx, 1, FeatureCustomerEmails))

	// features and rules live in separate key spaces
	assert.True(t, reg.IsEnabled(ctx, 1, "booking_confirmation"))

	assert.ErrorIs(t, reg.SetFeature(ctx, 1, "failure_retry", true), ErrFeatureNotFound)
	assert.Len(t, reg.Features(), 4)
}

type failingToggles struct{}

func (failingToggles) Get(context.Context, uint, string) (bool, bool, error) {
	return false, false, errors.New("db down")
}
func (failingToggles) Set(context.Context, uint, string, bool) error { return errors.New("db down") }
func (failingToggles) Clear(context.Context, uint, string) error     { return errors.New("db down") }

func TestRuleRegistry_StoreErrorDefaultsToEnabled(t *testing.T) {
	reg := NewRuleRegistry(failingToggles{}, quietLogger())
	assert.True(t, reg.IsEnabled(context.Background(), 1, "booking_confirmation"))
	assert.Error(t, reg.SetEnabled(context.Background(), 1, "booking_confirmation", false))
}

func TestToggleStores(t *testing.T) {
	stores := map[string]ToggleStore{
		"memory": NewMemoryToggleStore(),
		"gorm":   NewGormToggleStore(newTestDB(t)),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, found, err := store.Get(ctx, 1, "rule")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, store.Set(ctx, 1, "rule", false))
			enabled, found, err := store.Get(ctx, 1, "rule")
			require.NoError(t, err)
			assert.True(t, found)
			assert.False(t, enabled)

			// upsert
			require.NoError(t, store.Set(ctx, 1, "rule", true))
			enabled, _, err = store.Get(ctx, 1, "rule")
			require.NoError(t, err)
			assert.True(t, enabled)

			_, found, err = store.Get(ctx, 2, "rule")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, store.Clear(ctx, 1, "rule"))
			require.NoError(t, store.Clear(ctx, 1, "rule"))
			_, found, err = store.Get(ctx, 1, "rule")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}
