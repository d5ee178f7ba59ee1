package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/orders"
	"github.com/avellano/avellano-bot/internal/session"
)

// startOrder sends the catalog and waits for order lines. Customers that
// never chose hogar or a business kind are asked first.
func (r *Router) startOrder(ctx context.Context, t *Turn) error {
	c, err := r.deps.Customers.GetCustomer(ctx, t.Phone)
	if errors.Is(err, models.ErrNotFound) || (err == nil && !c.Type.IsValid()) {
		return r.askCustomerKind(ctx, t)
	}
	if err != nil {
		return err
	}
	if err := t.Capture(ctx, FlowPlaceOrder, session.KeyAwaitingOrderItems, nil); err != nil {
		return err
	}
	return t.Reply(ctx, models.Text(r.deps.Catalog.Format()), models.Text(orderItemsHelp))
}

// captureOrderItems parses the order lines into a draft.
func (r *Router) captureOrderItems(ctx context.Context, t *Turn) error {
	if t.Is("cancelar", btnCancel) {
		if err := t.Release(ctx, session.KeyAwaitingOrderItems, session.KeyOrderDraft); err != nil {
			return err
		}
		return t.Reply(ctx, draftCanceled)
	}
	parsed, err := r.deps.Catalog.ParseLines(t.Text)
	if err != nil {
		var le *LineError
		if !errors.As(err, &le) {
			return err
		}
		return t.Reply(ctx, models.Text("⚠️ No pudimos leer tu pedido: "+le.Error()+"\n\n"+orderItemsHelp))
	}
	draft, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("failed to encode order draft: %w", err)
	}
	if err := t.Set(ctx, session.Values{
		session.KeyCapture:            "",
		session.KeyAwaitingOrderItems: "",
		session.KeyOrderDraft:         string(draft),
	}); err != nil {
		return err
	}
	return t.Reply(ctx, models.WithButtons(draftSummary(parsed), btnFinish, btnCancel))
}

func draftSummary(draft []models.OrderLine) string {
	var b strings.Builder
	b.WriteString("🧾 *Resumen de tu pedido*\n\n")
	var total int64
	for _, l := range draft {
		sub := int64(l.Quantity) * l.UnitPrice
		total += sub
		fmt.Fprintf(&b, "• %d x %s = %s\n", l.Quantity, l.Product, formatCOP(sub))
	}
	fmt.Fprintf(&b, "\n💰 *Total: %s*\n\n¿Confirmas tu pedido?", formatCOP(total))
	return b.String()
}

// finishOrder turns the draft into an order.
func (r *Router) finishOrder(ctx context.Context, t *Turn) error {
	raw := t.Session.Get(session.KeyOrderDraft)
	if raw == "" || r.deps.Orders == nil {
		return t.Reply(ctx, noDraft)
	}
	var draft []models.OrderLine
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		slog.Warn("Router: discarding unreadable order draft", "phone", t.Phone, "error", err)
		if err := t.Set(ctx, session.Values{session.KeyOrderDraft: ""}); err != nil {
			return err
		}
		return t.Reply(ctx, noDraft)
	}
	c, err := r.deps.Customers.GetCustomer(ctx, t.Phone)
	if errors.Is(err, models.ErrNotFound) {
		return r.askCustomerKind(ctx, t)
	}
	if err != nil {
		return err
	}
	o, err := r.deps.Orders.Place(ctx, c, draft)
	if errors.Is(err, models.ErrInvalidOrder) {
		if err := t.Set(ctx, session.Values{session.KeyOrderDraft: ""}); err != nil {
			return err
		}
		return t.Reply(ctx, noDraft)
	}
	if err != nil {
		return err
	}
	if err := t.Set(ctx, session.Values{session.KeyOrderDraft: ""}); err != nil {
		return err
	}
	r.addInteraction(ctx, t.Phone, models.InteractionOrder,
		fmt.Sprintf("Pedido %s por %s", o.Code, formatCOP(o.Total)))
	return t.Reply(ctx, orderConfirmed(o))
}

func (r *Router) cancelDraft(ctx context.Context, t *Turn) error {
	if err := t.Set(ctx, session.Values{session.KeyOrderDraft: "", session.KeyAwaitingOrderItems: ""}); err != nil {
		return err
	}
	return t.Reply(ctx, draftCanceled)
}

// orderStatus lists the customer's latest orders.
func (r *Router) orderStatus(ctx context.Context, t *Turn) error {
	if r.deps.Orders == nil {
		return t.Reply(ctx, noOrders)
	}
	recent, err := r.deps.Orders.Recent(ctx, t.Phone)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		return t.Reply(ctx, noOrders)
	}
	var b strings.Builder
	b.WriteString("📦 *Tus últimos pedidos*\n")
	for _, o := range recent {
		fmt.Fprintf(&b, "\n*%s* (%s)\n%s · %s\n", o.Code, o.CreatedAt.Format("02/01/2006"),
			orders.StateLabel(o.State), formatCOP(o.Total))
	}
	return t.Reply(ctx, models.WithButtons(strings.TrimRight(b.String(), "\n"), btnPlaceOrder, btnMenu))
}
