package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/session"
)

// welcome shows the main menu, or the data policy when the user has not consented.
func (r *Router) welcome(ctx context.Context, t *Turn) error {
	if t.Consent.Granted() {
		return t.Reply(ctx, mainMenu()...)
	}
	if err := t.Capture(ctx, FlowWelcome, session.KeyAwaitingPolicy, session.Values{session.KeyFromWelcome: "true"}); err != nil {
		return err
	}
	return t.Reply(ctx, policyPrompt())
}

func (r *Router) welcomeReply(ctx context.Context, t *Turn) error {
	return r.consentReply(ctx, t, false)
}

func (r *Router) showPolicy(ctx context.Context, t *Turn) error {
	if err := t.Capture(ctx, FlowPolicies, session.KeyAwaitingPolicy, nil); err != nil {
		return err
	}
	return t.Reply(ctx, policyPrompt())
}

func (r *Router) policyReply(ctx context.Context, t *Turn) error {
	return r.consentReply(ctx, t, true)
}

// consentReply handles the answer to a policy prompt. Accepting from the
// policy flow creates the customer record when missing.
func (r *Router) consentReply(ctx context.Context, t *Turn, viaPolicies bool) error {
	switch classifyConsent(t.Input, t.Button) {
	case replyReject:
		if err := r.gate.Reject(ctx, t.Phone, t.Session); err != nil {
			return err
		}
		keyword := "hola"
		if viaPolicies {
			keyword = "Políticas"
		}
		return t.Reply(ctx, consentRejected(keyword))
	case replyAccept:
		fromWelcome := t.Session.Has(session.KeyFromWelcome)
		state, err := r.gate.Accept(ctx, t.Phone, t.Session, viaPolicies)
		if err != nil {
			return err
		}
		t.Consent = state
		if err := t.Release(ctx, session.KeyFromWelcome); err != nil {
			return err
		}
		msgs := []models.OutboundMessage{consentThanks(viaPolicies)}
		if !viaPolicies || fromWelcome {
			msgs = append(msgs, mainMenu()...)
		}
		return t.Reply(ctx, msgs...)
	default:
		return t.Reply(ctx, consentReprompt)
	}
}

func (r *Router) showStoredData(ctx context.Context, t *Turn) error {
	c, err := r.deps.Customers.GetCustomer(ctx, t.Phone)
	if errors.Is(err, models.ErrNotFound) {
		return t.Reply(ctx, noStoredData)
	}
	if err != nil {
		return err
	}
	return t.Reply(ctx, models.Text(storedDataText(c)))
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func storedDataText(c *models.Customer) string {
	accepted := "No"
	if c.HasConsent() {
		accepted = "Sí"
	}
	l := []string{
		"📋 *TUS DATOS ALMACENADOS:*",
		"",
		"📱 *Teléfono:* " + c.Phone,
		"👤 *Nombre:* " + orDefault(c.Name, "No registrado"),
		"🏢 *Tipo cliente:* " + orDefault(string(c.Type), "No registrado"),
	}
	if c.BusinessName != "" {
		l = append(l, "🏪 *Negocio:* "+c.BusinessName)
	}
	l = append(l,
		"🏙️ *Ciudad:* "+orDefault(c.City, "No registrada"),
		"📍 *Dirección:* "+orDefault(c.Address, "No registrada"),
		"📅 *Fecha registro:* "+c.RegisteredAt.Format("02/01/2006"),
		"✅ *Políticas aceptadas:* "+accepted,
	)
	if c.PolicyAcceptedAt != nil && c.HasConsent() {
		l = append(l, "📆 *Fecha aceptación:* "+c.PolicyAcceptedAt.Format("02/01/2006"))
	}
	l = append(l, "", "🗑️ Para revocar tu autorización, escribe *\"Revocar\"*")
	return lines(l...)
}

func (r *Router) askRevocation(ctx context.Context, t *Turn) error {
	if err := t.Capture(ctx, FlowRevoke, session.KeyAwaitingRevocation, nil); err != nil {
		return err
	}
	return t.Reply(ctx, revokeConfirm)
}

func (r *Router) confirmRevocation(ctx context.Context, t *Turn) error {
	confirmed := t.Is(btnConfirmRevoke, "si", "sí", "sí, revocar", "si, revocar")
	if f := strings.Fields(strings.Trim(t.Input, "¡!.")); !confirmed && len(f) > 0 {
		w := strings.TrimRight(f[0], ",")
		confirmed = w == "si" || w == "sí"
	}
	if !confirmed {
		if err := t.Release(ctx, session.KeyAwaitingRevocation); err != nil {
			return err
		}
		return t.Reply(ctx, revokeCanceled)
	}
	found, err := r.gate.Revoke(ctx, t.Phone, t.Session)
	if err != nil {
		return fmt.Errorf("failed to revoke consent: %w", err)
	}
	t.Consent = ConsentNone
	if !found {
		return t.Reply(ctx, revokeNoData)
	}
	return t.Reply(ctx, revoked)
}
