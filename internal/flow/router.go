// Package flow implements the conversational engine of the Avellano bot: an
// ordered list of keyword flows, capture continuations, and the consent gate
// that keeps users who have not accepted the data policy away from
// everything except the welcome and policy flows.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/avellano/avellano-bot/internal/inactivity"
	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/session"
	"github.com/avellano/avellano-bot/internal/store"
)

// Handler runs one step of a flow.
type Handler func(ctx context.Context, t *Turn) error

// Flow is a keyword-triggered conversation step with an optional
// continuation for the user's next message.
type Flow struct {
	Name string
	// Triggers are matched by equality against the normalized text or button.
	Triggers []string
	// OnFirstContact matches the first message ever received from a user.
	OnFirstContact bool
	// PreConsent flows are reachable before the data policy is accepted.
	PreConsent bool
	// Guard is the session flag that must be set for Continue to run.
	Guard    string
	Action   Handler
	Continue Handler
}

// Sender delivers WhatsApp messages.
type Sender interface {
	SendMessage(ctx context.Context, to string, msg models.OutboundMessage) error
}

// OrderPlacer creates orders and lists a customer's recent ones.
type OrderPlacer interface {
	Place(ctx context.Context, c *models.Customer, lines []models.OrderLine) (*models.Order, error)
	Recent(ctx context.Context, phone string) ([]models.Order, error)
}

// RecipeSuggester produces a short recipe for a topic ("pollo", "carnes").
type RecipeSuggester interface {
	SuggestRecipe(ctx context.Context, topic string) (string, error)
}

// Deps are the collaborators of a Router. Sessions, Customers,
// Conversations and Sender are required.
type Deps struct {
	Sessions      session.Store
	Customers     store.CustomerRepo
	Conversations store.ConversationRepo
	Sender        Sender
	Orders        OrderPlacer
	Timers        *inactivity.Manager
	Catalog       *Catalog
	Recipes       RecipeSuggester
	Events        EventSink
	Now           func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithFlows replaces the default flow list.
func WithFlows(flows ...Flow) Option {
	return func(r *Router) { r.flows = append([]Flow(nil), flows...) }
}

// Router dispatches inbound messages to flows.
type Router struct {
	flows  []Flow
	byName map[string]int
	deps   Deps
	gate   *Gate
}

// NewRouter creates a router over the default Avellano flows.
func NewRouter(deps Deps, opts ...Option) *Router {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Catalog == nil {
		deps.Catalog = DefaultCatalog()
	}
	if deps.Events == nil {
		deps.Events = LogSink{}
	}
	r := &Router{deps: deps, gate: NewGate(deps.Sessions, deps.Customers, deps.Now)}
	r.flows = r.defaultFlows()
	for _, opt := range opts {
		opt(r)
	}
	r.byName = make(map[string]int, len(r.flows))
	for i := range r.flows {
		f := &r.flows[i]
		triggers := make([]string, len(f.Triggers))
		for j, trig := range f.Triggers {
			triggers[j] = normalize(trig)
		}
		f.Triggers = triggers
		if _, dup := r.byName[f.Name]; dup {
			slog.Warn("Router: duplicate flow name, first registration wins", "flow", f.Name)
			continue
		}
		r.byName[f.Name] = i
	}
	return r
}

// Flows returns the flows in matching order.
func (r *Router) Flows() []Flow {
	return append([]Flow(nil), r.flows...)
}

// Gate returns the router's consent gate.
func (r *Router) Gate() *Gate {
	return r.gate
}

func (r *Router) flow(name string) *Flow {
	i, ok := r.byName[name]
	if !ok {
		return nil
	}
	return &r.flows[i]
}

// Dispatch handles one inbound message. Handler failures are answered with an
// apology and returned; panics are recovered.
func (r *Router) Dispatch(ctx context.Context, msg models.InboundMessage) (err error) {
	if msg.From == "" {
		return models.ErrEmptyRecipient
	}
	t := &Turn{
		Phone:        msg.From,
		Text:         strings.TrimSpace(msg.Text),
		Input:        normalize(msg.Text),
		Button:       normalize(msg.Button),
		FirstContact: msg.FirstContact,
		r:            r,
	}
	if t.Text == "" {
		t.Text = strings.TrimSpace(msg.Button)
		t.Input = t.Button
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Router.Dispatch: recovered panic", "phone", t.Phone, "flow", t.flow, "panic", rec,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("panic in flow %q: %v", t.flow, rec)
			r.fail(ctx, t, err)
		}
	}()

	if r.deps.Timers != nil {
		r.deps.Timers.Reset(t.Phone, r.Expire)
	}
	r.recordInbound(ctx, t, msg)
	t.Session = r.deps.Sessions.Get(ctx, t.Phone)
	t.Consent = r.gate.Status(ctx, t.Phone, t.Session)
	slog.Debug("Router.Dispatch", "phone", t.Phone, "input", t.Input, "button", t.Button, "consent", t.Consent,
		"capture", t.Session.Get(session.KeyCapture), "firstContact", t.FirstContact)

	if f, stale := r.capturedFlow(ctx, t); f != nil {
		t.flow = f.Name
		return r.finish(ctx, t, f.Continue(ctx, t))
	} else if stale {
		return nil
	}

	if !t.Consent.Granted() {
		if f := r.match(t, true); f != nil {
			return r.run(ctx, t, f)
		}
		r.emit(ctx, t, EventConsentBlocked, "")
		welcome := r.flow(FlowWelcome)
		if welcome == nil {
			return nil
		}
		return r.run(ctx, t, welcome)
	}

	if f := r.match(t, false); f != nil {
		return r.run(ctx, t, f)
	}
	r.emit(ctx, t, EventNoMatch, "")
	return nil
}

// capturedFlow returns the flow owning this turn through a pending capture.
// stale is true when the capture was dropped because its guard was gone.
func (r *Router) capturedFlow(ctx context.Context, t *Turn) (f *Flow, stale bool) {
	name := t.Session.Get(session.KeyCapture)
	if name == "" {
		return nil, false
	}
	f = r.flow(name)
	if f == nil || f.Continue == nil || (!f.PreConsent && !t.Consent.Granted()) {
		slog.Debug("Router: dropping unusable capture", "phone", t.Phone, "capture", name)
		if err := t.Release(ctx); err != nil {
			slog.Warn("Router: failed to release capture", "phone", t.Phone, "error", err)
		}
		return nil, false
	}
	if f.Guard != "" && !t.Session.Has(f.Guard) {
		t.flow = f.Name
		r.emit(ctx, t, EventStaleCapture, "guard "+f.Guard+" not set")
		if err := t.Release(ctx); err != nil {
			slog.Warn("Router: failed to release stale capture", "phone", t.Phone, "error", err)
		}
		return nil, true
	}
	return f, false
}

// match scans flows in declared order.
func (r *Router) match(t *Turn, preConsentOnly bool) *Flow {
	for i := range r.flows {
		f := &r.flows[i]
		if preConsentOnly && !f.PreConsent {
			continue
		}
		if f.OnFirstContact && t.FirstContact {
			return f
		}
		for _, trig := range f.Triggers {
			if trig != "" && (t.Input == trig || t.Button == trig) {
				return f
			}
		}
	}
	return nil
}

func (r *Router) run(ctx context.Context, t *Turn, f *Flow) error {
	t.flow = f.Name
	if f.Action == nil {
		return nil
	}
	return r.finish(ctx, t, f.Action(ctx, t))
}

func (r *Router) finish(ctx context.Context, t *Turn, err error) error {
	if err != nil {
		r.fail(ctx, t, err)
		return err
	}
	if t.flow != "" {
		if err := r.deps.Conversations.SetCurrentFlow(ctx, t.Phone, t.flow); err != nil {
			slog.Warn("Router: failed to set current flow", "phone", t.Phone, "flow", t.flow, "error", err)
		}
	}
	return nil
}

func (r *Router) fail(ctx context.Context, t *Turn, err error) {
	r.emit(ctx, t, EventFlowError, err.Error())
	if sendErr := r.send(ctx, t.Phone, models.Text(ApologyText)); sendErr != nil {
		slog.Error("Router: failed to send apology", "phone", t.Phone, "error", sendErr)
	}
}

func (r *Router) emit(ctx context.Context, t *Turn, kind EventKind, detail string) {
	r.deps.Events.Emit(ctx, Event{
		Kind:   kind,
		Phone:  t.Phone,
		Flow:   t.flow,
		Input:  t.Input,
		Detail: detail,
		At:     r.deps.Now(),
	})
}

// recordInbound logs the message, detects first contact and bumps the
// customer's interaction counter. Failures here never block the turn.
func (r *Router) recordInbound(ctx context.Context, t *Turn, msg models.InboundMessage) {
	if !t.FirstContact {
		exists, err := r.deps.Conversations.HasConversation(ctx, t.Phone)
		if err != nil {
			slog.Warn("Router: first-contact check failed", "phone", t.Phone, "error", err)
		} else if !exists {
			t.FirstContact = true
		}
	}
	at := msg.Time
	if at.IsZero() {
		at = r.deps.Now()
	}
	if err := r.deps.Conversations.AppendMessage(ctx, t.Phone, models.LoggedMessage{
		Role: models.RoleCustomer, Text: t.Text, Timestamp: at,
	}); err != nil {
		slog.Error("Router: failed to log inbound message", "phone", t.Phone, "error", err)
	}
	if err := r.deps.Customers.TouchCustomer(ctx, t.Phone, at); err != nil {
		slog.Warn("Router: failed to touch customer", "phone", t.Phone, "error", err)
	}
}

// send delivers one message and appends it to the conversation log.
func (r *Router) send(ctx context.Context, phone string, msg models.OutboundMessage) error {
	if err := r.deps.Sender.SendMessage(ctx, phone, msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", phone, err)
	}
	text := msg.Text
	if len(msg.Buttons) > 0 {
		text += "\n[" + strings.Join(msg.Buttons, " | ") + "]"
	}
	if err := r.deps.Conversations.AppendMessage(ctx, phone, models.LoggedMessage{
		Role: models.RoleBot, Text: text, Timestamp: r.deps.Now(),
	}); err != nil {
		slog.Error("Router: failed to log outbound message", "phone", phone, "error", err)
	}
	return nil
}

// Expire closes an idle conversation: pending captures are dropped and the
// closing message is sent. Consent and any order draft are kept.
func (r *Router) Expire(ctx context.Context, phone string) error {
	err := r.deps.Sessions.Merge(ctx, phone, session.Values{
		session.KeyCapture:              "",
		session.KeyAwaitingPolicy:       "",
		session.KeyFromWelcome:          "",
		session.KeyAwaitingBusinessData: "",
		session.KeyAwaitingOrderItems:   "",
		session.KeyAwaitingRevocation:   "",
	})
	if err != nil {
		slog.Warn("Router.Expire: failed to release session captures", "phone", phone, "error", err)
	}
	return r.send(ctx, phone, models.Text(ClosingText))
}
