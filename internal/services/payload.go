package services

import (
	"strings"

	"github.com/spf13/cast"
)

// Payload is the loosely typed event body handed to the dispatcher.
// Values usually come straight from JSON, so numbers arrive as float64.
type Payload map[string]interface{}

// entity id candidates, first non-empty wins
var entityIDKeys = []string{"booking_id", "form_submission_id", "inventory_id", "contact_id"}

// EntityID returns the id used to build the idempotency key.
func (p Payload) EntityID() (string, bool) {
	for _, k := range entityIDKeys {
		if s, ok := p.nonEmptyString(k); ok {
			return s, true
		}
	}
	return "", false
}

// IdempotencyKey is "<rule_key>:<entity_id>", or "" when the payload names
// no entity.
func (p Payload) IdempotencyKey(ruleKey string) string {
	id, ok := p.EntityID()
	if !ok {
		return ""
	}
	return ruleKey + ":" + id
}

// String returns the first non-empty value among keys.
func (p Payload) String(keys ...string) string {
	for _, k := range keys {
		if s, ok := p.nonEmptyString(k); ok {
			return s
		}
	}
	return ""
}

// Uint reads a positive id. Zero, negatives and junk report false.
func (p Payload) Uint(key string) (uint, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	n, err := cast.ToInt64E(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return uint(n), true
}

// Clone is a shallow copy, enough to detach from the caller's map.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Payload) nonEmptyString(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case bool:
		return "", false
	case float64:
		if t == 0 {
			return "", false
		}
	case int:
		if t == 0 {
			return "", false
		}
	case int64:
		if t == 0 {
			return "", false
		}
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return "", false
	}
	return s, true
}
