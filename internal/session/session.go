// Package session provides the per-user conversational session store.
//
// A session is a small string map keyed by phone number that tracks where a
// user is in the conversation (pending capture, guard flags, cached consent).
// Sessions are not the source of truth for anything durable; the consent gate
// re-checks the customer record whenever the session cache is empty.
package session

import (
	"context"
	"maps"
)

// Well-known session keys.
const (
	KeyCapture              = "capture"
	KeyAwaitingPolicy       = "awaiting_policy_acceptance"
	KeyFromWelcome          = "from_welcome"
	KeyConsent              = "consent"
	KeyConsentAt            = "consent_at"
	KeyCustomerType         = "customer_type"
	KeyAwaitingBusinessData = "awaiting_business_data"
	KeyAwaitingOrderItems   = "awaiting_order_items"
	KeyOrderDraft           = "order_draft"
	KeyAwaitingRevocation   = "awaiting_revocation"
)

// Values is a session map. The zero value is an empty session.
type Values map[string]string

// Get returns the value for key, or "" when absent.
func (v Values) Get(key string) string {
	return v[key]
}

// Has reports whether key is present and non-empty.
func (v Values) Has(key string) bool {
	return v[key] != ""
}

// Store is the session capability used by the flow engine.
type Store interface {
	// Get never fails; a missing or unreadable session is returned empty.
	Get(ctx context.Context, phone string) Values
	// Merge sets the given keys. An empty value removes the key.
	Merge(ctx context.Context, phone string, partial Values) error
	// Clear drops the whole session.
	Clear(ctx context.Context, phone string) error
}

// apply merges partial into dst following the empty-deletes rule.
func apply(dst, partial Values) {
	for k, v := range partial {
		if v == "" {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}

func clone(v Values) Values {
	if v == nil {
		return Values{}
	}
	return maps.Clone(v)
}
