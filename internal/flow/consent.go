package flow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/session"
	"github.com/avellano/avellano-bot/internal/store"
)

// ConsentState is a user's data-policy acceptance as seen by the bot.
type ConsentState int

const (
	// ConsentNone means the user has not accepted (or has revoked).
	ConsentNone ConsentState = iota
	// ConsentSessionOnly means the user accepted before a customer record
	// existed; the acceptance lives only in the session until the first
	// customer write.
	ConsentSessionOnly
	// ConsentPersisted means the customer record carries the acceptance.
	ConsentPersisted
)

// Session values of session.KeyConsent.
const (
	consentTagSessionOnly = "session_only"
	consentTagPersisted   = "persisted"
)

func (s ConsentState) String() string {
	switch s {
	case ConsentSessionOnly:
		return consentTagSessionOnly
	case ConsentPersisted:
		return consentTagPersisted
	default:
		return "none"
	}
}

// Granted reports whether the user may use flows that need consent.
func (s ConsentState) Granted() bool {
	return s != ConsentNone
}

// Gate decides whether a user has consented and keeps the session cache and
// the customer record in agreement.
type Gate struct {
	sessions  session.Store
	customers store.CustomerRepo
	now       func() time.Time
}

// NewGate creates a consent gate.
func NewGate(sessions session.Store, customers store.CustomerRepo, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{sessions: sessions, customers: customers, now: now}
}

// Status checks the session first, then the customer record. A persisted
// acceptance found in the repository is cached into the session (and into
// sess). Repository errors are logged and count as no consent.
func (g *Gate) Status(ctx context.Context, phone string, sess session.Values) ConsentState {
	switch sess.Get(session.KeyConsent) {
	case consentTagPersisted:
		return ConsentPersisted
	case consentTagSessionOnly:
		return ConsentSessionOnly
	}
	c, err := g.customers.GetCustomer(ctx, phone)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.Error("ConsentGate.Status: customer lookup failed", "phone", phone, "error", err)
		}
		return ConsentNone
	}
	if !c.HasConsent() {
		return ConsentNone
	}
	cached := session.Values{session.KeyConsent: consentTagPersisted}
	if c.PolicyAcceptedAt != nil {
		cached[session.KeyConsentAt] = c.PolicyAcceptedAt.Format(time.RFC3339)
	}
	if err := g.sessions.Merge(ctx, phone, cached); err != nil {
		slog.Warn("ConsentGate.Status: failed to cache consent", "phone", phone, "error", err)
	}
	for k, v := range cached {
		sess[k] = v
	}
	return ConsentPersisted
}

// Accept records acceptance. An existing customer is stamped and saved. With
// no customer the acceptance stays in the session, unless createIfMissing is
// set, in which case a minimal customer record is created.
func (g *Gate) Accept(ctx context.Context, phone string, sess session.Values, createIfMissing bool) (ConsentState, error) {
	now := g.now()
	c, err := g.customers.GetCustomer(ctx, phone)
	switch {
	case errors.Is(err, models.ErrNotFound):
		if !createIfMissing {
			err := g.merge(ctx, phone, sess, session.Values{
				session.KeyConsent:        consentTagSessionOnly,
				session.KeyConsentAt:      now.Format(time.RFC3339),
				session.KeyAwaitingPolicy: "",
			})
			if err != nil {
				return ConsentNone, err
			}
			slog.Info("ConsentGate.Accept: session-only consent", "phone", phone)
			return ConsentSessionOnly, nil
		}
		c = &models.Customer{Phone: phone, RegisteredAt: now, LastInteraction: now}
	case err != nil:
		return ConsentNone, err
	}

	c.AcceptPolicy(now)
	if err := g.customers.UpsertCustomer(ctx, c); err != nil {
		return ConsentNone, err
	}
	if err := g.merge(ctx, phone, sess, session.Values{
		session.KeyConsent:        consentTagPersisted,
		session.KeyConsentAt:      now.Format(time.RFC3339),
		session.KeyAwaitingPolicy: "",
	}); err != nil {
		return ConsentNone, err
	}
	slog.Info("ConsentGate.Accept: consent persisted", "phone", phone)
	return ConsentPersisted, nil
}

// Reject persists nothing; it only drops the pending prompt.
func (g *Gate) Reject(ctx context.Context, phone string, sess session.Values) error {
	slog.Info("ConsentGate.Reject", "phone", phone)
	return g.merge(ctx, phone, sess, session.Values{
		session.KeyAwaitingPolicy: "",
		session.KeyFromWelcome:    "",
		session.KeyCapture:        "",
	})
}

// Revoke withdraws consent. The customer record, if any, is marked revoked
// and inactive but never deleted. It reports whether a record existed.
func (g *Gate) Revoke(ctx context.Context, phone string, sess session.Values) (bool, error) {
	found := true
	c, err := g.customers.GetCustomer(ctx, phone)
	switch {
	case errors.Is(err, models.ErrNotFound):
		found = false
	case err != nil:
		return false, err
	default:
		c.RevokePolicy(g.now())
		if err := g.customers.UpsertCustomer(ctx, c); err != nil {
			return false, err
		}
	}
	err = g.merge(ctx, phone, sess, session.Values{
		session.KeyConsent:              "",
		session.KeyConsentAt:            "",
		session.KeyCapture:              "",
		session.KeyAwaitingRevocation:   "",
		session.KeyAwaitingPolicy:       "",
		session.KeyAwaitingOrderItems:   "",
		session.KeyAwaitingBusinessData: "",
		session.KeyOrderDraft:           "",
	})
	slog.Info("ConsentGate.Revoke", "phone", phone, "found", found)
	return found, err
}

// Reconcile stamps c with the session's acceptance when the record does not
// carry it yet. It reports whether the session should be upgraded to
// persisted once c is saved.
func (g *Gate) Reconcile(sess session.Values, c *models.Customer) bool {
	tag := sess.Get(session.KeyConsent)
	if tag != consentTagSessionOnly && tag != consentTagPersisted {
		return false
	}
	if c.PolicyRevoked {
		// A revocation on record wins over a stale session cache.
		return false
	}
	if !c.HasConsent() {
		at := g.now()
		if ts, err := time.Parse(time.RFC3339, sess.Get(session.KeyConsentAt)); err == nil {
			at = ts
		}
		c.AcceptPolicy(at)
	}
	return tag == consentTagSessionOnly
}

// SaveCustomer is the single write path for customer records from the bot.
// It reconciles session consent into c, saves it and upgrades the session.
func (g *Gate) SaveCustomer(ctx context.Context, sess session.Values, c *models.Customer) error {
	upgrade := g.Reconcile(sess, c)
	if err := g.customers.UpsertCustomer(ctx, c); err != nil {
		return err
	}
	if upgrade {
		slog.Info("ConsentGate: session consent persisted on customer write", "phone", c.Phone)
		return g.merge(ctx, c.Phone, sess, session.Values{session.KeyConsent: consentTagPersisted})
	}
	return nil
}

// merge writes partial to the store and mirrors it into sess.
func (g *Gate) merge(ctx context.Context, phone string, sess session.Values, partial session.Values) error {
	if err := g.sessions.Merge(ctx, phone, partial); err != nil {
		return err
	}
	for k, v := range partial {
		if v == "" {
			delete(sess, k)
		} else if sess != nil {
			sess[k] = v
		}
	}
	return nil
}
