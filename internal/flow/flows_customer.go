package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/session"
)

func (r *Router) showMenu(ctx context.Context, t *Turn) error {
	return t.Reply(ctx, mainMenu()...)
}

func (r *Router) askCustomerKind(ctx context.Context, t *Turn) error {
	return t.Reply(ctx, customerKindPrompt)
}

func (r *Router) listBusinessKinds(ctx context.Context, t *Turn) error {
	return t.Reply(ctx, businessKinds...)
}

// reply returns a handler that sends fixed messages.
func (r *Router) reply(msgs ...models.OutboundMessage) Handler {
	return func(ctx context.Context, t *Turn) error {
		return t.Reply(ctx, msgs...)
	}
}

// loadOrNewCustomer returns the stored customer or a fresh active record.
func (r *Router) loadOrNewCustomer(ctx context.Context, phone string) (*models.Customer, bool, error) {
	c, err := r.deps.Customers.GetCustomer(ctx, phone)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, err
	}
	now := r.deps.Now()
	return &models.Customer{
		Phone:           phone,
		Status:          models.CustomerActive,
		RegisteredAt:    now,
		LastInteraction: now,
	}, true, nil
}

func (r *Router) addInteraction(ctx context.Context, phone string, kind models.InteractionType, content string) {
	if err := r.deps.Conversations.AddInteraction(ctx, phone, models.Interaction{
		Type: kind, Content: content, Timestamp: r.deps.Now(),
	}); err != nil {
		slog.Warn("Router: failed to record interaction", "phone", phone, "kind", kind, "error", err)
	}
}

// registerHome records the customer as a home buyer.
func (r *Router) registerHome(ctx context.Context, t *Turn) error {
	c, isNew, err := r.loadOrNewCustomer(ctx, t.Phone)
	if err != nil {
		return err
	}
	c.Type = models.CustomerHome
	c.Responsable = models.ResponsableFor(models.CustomerHome)
	if err := r.gate.SaveCustomer(ctx, t.Session, c); err != nil {
		return err
	}
	if err := t.Set(ctx, session.Values{session.KeyCustomerType: string(models.CustomerHome)}); err != nil {
		return err
	}
	if isNew {
		r.addInteraction(ctx, t.Phone, models.InteractionRegistration, "Registro cliente hogar")
	}
	return t.Reply(ctx, homeRegistered)
}

// businessKind records the chosen business type and offers registration.
func (r *Router) businessKind(typ models.CustomerType) Handler {
	return func(ctx context.Context, t *Turn) error {
		if err := t.Set(ctx, session.Values{session.KeyCustomerType: string(typ)}); err != nil {
			return err
		}
		return t.Reply(ctx, businessKindMessage(typ))
	}
}

func (r *Router) askBusinessData(ctx context.Context, t *Turn) error {
	if !models.CustomerType(t.Session.Get(session.KeyCustomerType)).IsBusiness() {
		return t.Reply(ctx, businessKinds...)
	}
	if err := t.Capture(ctx, FlowSendInfo, session.KeyAwaitingBusinessData, nil); err != nil {
		return err
	}
	return t.Reply(ctx, businessDataPrompt)
}

// listMarker matches "1.", "2)", "-" or "•" at the start of a field.
var listMarker = regexp.MustCompile(`^(?:\d+[.)]|[-•*])\s*`)

// splitFields splits by lines when the text has several, otherwise by commas.
func splitFields(text string) []string {
	sep := ","
	if strings.Contains(text, "\n") {
		sep = "\n"
	}
	var out []string
	for _, f := range strings.Split(text, sep) {
		f = strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(f), ""))
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// captureBusinessData stores the business registration sent after enviar_info_negocio.
func (r *Router) captureBusinessData(ctx context.Context, t *Turn) error {
	fields := splitFields(t.Text)
	if len(fields) < 4 {
		return t.Reply(ctx, businessDataReprompt)
	}
	c, _, err := r.loadOrNewCustomer(ctx, t.Phone)
	if err != nil {
		return err
	}
	if typ := models.CustomerType(t.Session.Get(session.KeyCustomerType)); typ.IsValid() {
		c.Type = typ
	}
	c.BusinessName = fields[0]
	c.City = fields[1]
	c.Address = fields[2]
	c.ContactPerson = fields[3]
	if len(fields) > 4 {
		c.ProductsOfInterest = strings.Join(fields[4:], ", ")
	}
	if c.Name == "" {
		c.Name = c.ContactPerson
	}
	c.Responsable = models.ResponsableFor(c.Type)
	if err := r.gate.SaveCustomer(ctx, t.Session, c); err != nil {
		return err
	}
	if err := t.Release(ctx, session.KeyAwaitingBusinessData); err != nil {
		return err
	}
	r.addInteraction(ctx, t.Phone, models.InteractionRegistration,
		fmt.Sprintf("Registro negocio %s (%s) en %s", c.BusinessName, c.Type, c.City))
	return t.Reply(ctx, businessRegistered(c.BusinessName))
}

func (r *Router) contactAdvisor(ctx context.Context, t *Turn) error {
	r.addInteraction(ctx, t.Phone, models.InteractionAdvisor, "Solicitud de contacto con asesor")
	return t.Reply(ctx, advisorText)
}

func (r *Router) showCatalog(ctx context.Context, t *Turn) error {
	return t.Reply(ctx,
		models.Text(r.deps.Catalog.Format()),
		models.WithButtons("¿Deseas hacer un pedido?", btnPlaceOrder, btnMenu),
	)
}

// recipe sends a generated recipe when a suggester is configured, falling
// back to the static one.
func (r *Router) recipe(topic string) Handler {
	return func(ctx context.Context, t *Turn) error {
		text := staticRecipes[topic]
		if r.deps.Recipes != nil {
			suggestion, err := r.deps.Recipes.SuggestRecipe(ctx, topic)
			switch {
			case err != nil:
				slog.Warn("Router: recipe suggestion failed, using static recipe", "topic", topic, "error", err)
			case strings.TrimSpace(suggestion) != "":
				text = strings.TrimSpace(suggestion)
			}
		}
		return t.Reply(ctx, models.WithButtons(text, btnRecipes, btnMenu))
	}
}
