package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/session"
	"github.com/avellano/avellano-bot/internal/store"
)

func TestFlows_DeclaredOrder(t *testing.T) {
	h := newHarness(t)
	want := []string{
		FlowWelcome, FlowOrder, FlowHome, FlowPlaceOrder, FlowBackToMenu, FlowBusiness,
		FlowStores, FlowGrills, FlowPremium, FlowStandard, FlowWholesale, FlowSendInfo,
		FlowCatalog, FlowAdvisor, FlowFindUs, FlowLocation, FlowBranches, FlowRecipes,
		FlowChickenRecipes, FlowMeatRecipes, FlowSupport, FlowGeneralInfo, FlowMyData,
		FlowPolicies, FlowShowData, FlowRevoke, FlowFinish, FlowCancel, FlowOrderStatus,
	}
	flows := h.router.Flows()
	if len(flows) != len(want) {
		t.Fatalf("expected %d flows, got %d", len(want), len(flows))
	}
	for i, f := range flows {
		if f.Name != want[i] {
			t.Errorf("flow %d: expected %s, got %s", i, want[i], f.Name)
		}
		if f.PreConsent != (f.Name == FlowWelcome || f.Name == FlowPolicies) {
			t.Errorf("flow %s: unexpected PreConsent=%v", f.Name, f.PreConsent)
		}
	}
}

func TestDispatch_FirstContactRaisesConsentPrompt(t *testing.T) {
	h := newHarness(t)
	msgs := h.mustSay("buenas tardes")
	if len(msgs) != 1 || !containsText(msgs, "POLÍTICA DE TRATAMIENTO") {
		t.Fatalf("expected policy prompt, got %+v", msgs)
	}
	if !hasButton(msgs, btnAccept) || !hasButton(msgs, btnReject) {
		t.Errorf("expected accept/reject buttons, got %+v", msgs[0].Buttons)
	}
	sess := h.session()
	if sess.Get(session.KeyCapture) != FlowWelcome || !sess.Has(session.KeyAwaitingPolicy) || !sess.Has(session.KeyFromWelcome) {
		t.Errorf("unexpected session %v", sess)
	}
}

func TestDispatch_AcceptWithoutCustomerIsSessionOnly(t *testing.T) {
	h := newHarness(t)
	h.mustSay("hola")
	msgs := h.mustTap(btnAccept)
	if !containsText(msgs, "Gracias por aceptar") || !hasButton(msgs, btnOrder) || !hasButton(msgs, btnCheckOrder) {
		t.Fatalf("expected thanks and main menu, got %+v", msgs)
	}
	sess := h.session()
	if sess.Get(session.KeyConsent) != "session_only" || !sess.Has(session.KeyConsentAt) {
		t.Errorf("expected session-only consent, got %v", sess)
	}
	if sess.Has(session.KeyCapture) || sess.Has(session.KeyAwaitingPolicy) {
		t.Errorf("expected capture released, got %v", sess)
	}
	if h.customer() != nil {
		t.Error("accepting from welcome must not create a customer")
	}
}

func TestDispatch_SessionConsentReconciledOnCustomerWrite(t *testing.T) {
	h := newHarness(t)
	h.consent()
	h.mustTap(btnOrder)
	msgs := h.mustTap(btnHome)
	if !hasButton(msgs, btnPlaceOrder) {
		t.Fatalf("expected home menu, got %+v", msgs)
	}
	c := h.customer()
	if c == nil {
		t.Fatal("expected customer to be created")
	}
	if !c.HasConsent() || c.PolicyAcceptedAt == nil {
		t.Errorf("expected reconciled consent on customer, got %+v", c)
	}
	if c.Type != models.CustomerHome || c.Responsable != models.ResponsableMassMarket {
		t.Errorf("unexpected customer %+v", c)
	}
	if h.session().Get(session.KeyConsent) != "persisted" {
		t.Errorf("expected session upgraded to persisted, got %v", h.session())
	}
}

func TestDispatch_RejectAndConsentBlocked(t *testing.T) {
	h := newHarness(t)
	h.mustSay("hola")
	msgs := h.mustTap(btnReject)
	if !containsText(msgs, `escribe *"hola"*`) {
		t.Fatalf("expected rejection text, got %+v", msgs)
	}
	if h.session().Has(session.KeyCapture) {
		t.Error("expected capture released after rejection")
	}

	msgs = h.mustSay("pedido")
	if !containsText(msgs, "POLÍTICA DE TRATAMIENTO") {
		t.Errorf("expected consent prompt for blocked flow, got %+v", msgs)
	}
	if h.sink.count(EventConsentBlocked) != 1 {
		t.Errorf("expected one consent_blocked event, got %d", h.sink.count(EventConsentBlocked))
	}
	if h.customer() != nil {
		t.Error("rejection must persist nothing")
	}
}

func TestDispatch_EnglishRejectionGrantsNothing(t *testing.T) {
	for _, reply := range []string{"no accept", "I do not accept"} {
		t.Run(reply, func(t *testing.T) {
			h := newHarness(t)
			h.mustSay("hola")
			msgs := h.mustSay(reply)
			if !containsText(msgs, `escribe *"hola"*`) {
				t.Fatalf("expected rejection text, got %+v", msgs)
			}
			if got := h.session().Get(session.KeyConsent); got != "" {
				t.Errorf("consent = %q after %q, want none", got, reply)
			}
			if h.customer() != nil {
				t.Error("rejection must persist nothing")
			}
		})
	}
}

func TestDispatch_UnrecognizedConsentReplyReprompts(t *testing.T) {
	h := newHarness(t)
	h.mustSay("hola")
	msgs := h.mustSay("mmm no sé")
	if !containsText(msgs, "Por favor responde") {
		t.Fatalf("expected re-prompt, got %+v", msgs)
	}
	sess := h.session()
	if sess.Get(session.KeyCapture) != FlowWelcome || !sess.Has(session.KeyAwaitingPolicy) {
		t.Errorf("expected capture and guard kept, got %v", sess)
	}
}

func TestClassifyConsent(t *testing.T) {
	cases := []struct {
		input, button string
		want          consentReply
	}{
		{"no acepto", "", replyReject},
		{"no", "", replyReject},
		{"no accept", "", replyReject},
		{"i do not accept", "", replyReject},
		{"", "no accept", replyReject},
		{"rechazo", "", replyReject},
		{"❌ no acepto", "❌ no acepto", replyReject},
		{"acepto", "", replyAccept},
		{"sí", "", replyAccept},
		{"si claro", "", replyAccept},
		{"yes", "", replyAccept},
		{"", "✅ acepto", replyAccept},
		{"tal vez", "", replyUnknown},
	}
	for _, tc := range cases {
		if got := classifyConsent(tc.input, tc.button); got != tc.want {
			t.Errorf("classifyConsent(%q, %q) = %v, want %v", tc.input, tc.button, got, tc.want)
		}
	}
}

func TestDispatch_StaleCaptureIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.consent()
	// A capture whose guard flag is gone.
	h.sessions.Merge(context.Background(), testPhone, session.Values{session.KeyCapture: FlowPlaceOrder})

	msgs := h.mustSay("2 pollo entero")
	if len(msgs) != 0 {
		t.Errorf("stale capture must be a no-op, got %+v", msgs)
	}
	if h.sink.count(EventStaleCapture) != 1 {
		t.Errorf("expected ignored_stale_capture event, got %d", h.sink.count(EventStaleCapture))
	}
	if h.session().Has(session.KeyCapture) {
		t.Error("expected stale capture released")
	}

	// The next turn routes normally.
	if msgs := h.mustSay("menu"); !hasButton(msgs, btnOrder) {
		t.Errorf("expected main menu after stale capture, got %+v", msgs)
	}
}

func TestDispatch_CaptureTakesPrecedenceOverTriggers(t *testing.T) {
	h := newHarness(t)
	h.consent()
	h.mustSay("revocar")
	// "recetas" is a trigger, but the revocation capture owns this turn.
	msgs := h.mustSay("recetas")
	if !containsText(msgs, "Tu autorización sigue activa") {
		t.Errorf("expected revocation continuation, got %+v", msgs)
	}
}

func TestDispatch_NoMatchIsSilent(t *testing.T) {
	h := newHarness(t)
	h.consent()
	msgs := h.mustSay("qwerty")
	if len(msgs) != 0 {
		t.Errorf("expected no reply, got %+v", msgs)
	}
	if h.sink.count(EventNoMatch) != 1 {
		t.Errorf("expected no_match event")
	}
}

func TestDispatch_PriorityMenuIsWelcome(t *testing.T) {
	h := newHarness(t)
	h.consent()
	msgs := h.mustSay("  MENU ")
	if len(msgs) != 2 || !hasButton(msgs, btnRecipes) {
		t.Errorf("expected main menu from welcome, got %+v", msgs)
	}
}

func TestDispatch_EarlierFlowWinsSharedTrigger(t *testing.T) {
	h := newHarness(t)
	var ran []string
	action := func(name string) Handler {
		return func(context.Context, *Turn) error {
			ran = append(ran, name)
			return nil
		}
	}
	flows := []Flow{
		{Name: "a", Triggers: []string{"Hola"}, PreConsent: true, Action: action("a")},
		{Name: "b", Triggers: []string{"hola"}, PreConsent: true, Action: action("b")},
	}
	r := NewRouter(h.router.deps, WithFlows(flows...))

	if err := r.Dispatch(context.Background(), models.InboundMessage{From: testPhone, Text: "hola"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(ran) != 1 || ran[0] != "a" {
		t.Errorf("ran = %v, want only [a]", ran)
	}
	if flows[0].Triggers[0] != "Hola" {
		t.Errorf("caller's triggers modified: %q", flows[0].Triggers[0])
	}
}

func TestDispatch_PersistedConsentFromRepository(t *testing.T) {
	h := newHarness(t)
	c := &models.Customer{Phone: testPhone, Type: models.CustomerHome, Status: models.CustomerActive}
	c.AcceptPolicy(testNow.Add(-24 * time.Hour))
	if err := h.store.UpsertCustomer(context.Background(), c); err != nil {
		t.Fatalf("UpsertCustomer failed: %v", err)
	}
	// First contact from a consented customer goes straight to the menu.
	if msgs := h.mustSay("buenas"); !hasButton(msgs, btnOrder) || containsText(msgs, "POLÍTICA DE TRATAMIENTO") {
		t.Fatalf("expected main menu for consented customer, got %+v", msgs)
	}
	if msgs := h.mustSay("recetas"); !hasButton(msgs, btnChicken) {
		t.Fatalf("expected recipes menu, got %+v", msgs)
	}
	if h.session().Get(session.KeyConsent) != "persisted" {
		t.Errorf("expected persisted consent cached, got %v", h.session())
	}
}

func TestDispatch_ConsentBlocksEveryGatedFlow(t *testing.T) {
	h := newHarness(t)
	for _, f := range h.router.Flows() {
		if f.PreConsent {
			continue
		}
		for _, trig := range f.Triggers {
			h.sessions.Clear(context.Background(), testPhone)
			msgs := h.mustSay(trig)
			if len(msgs) != 1 || !containsText(msgs, "POLÍTICA DE TRATAMIENTO") {
				t.Errorf("%s/%q: expected consent prompt, got %+v", f.Name, trig, msgs)
			}
		}
	}
	if h.customer() != nil {
		t.Error("no customer may be written before consent")
	}
	orders, _ := h.store.ListOrdersByPhone(context.Background(), testPhone, 10)
	if len(orders) != 0 {
		t.Error("no order may be created before consent")
	}
}

func TestDispatch_PanicIsRecovered(t *testing.T) {
	h := newHarness(t)
	r := NewRouter(h.router.deps, WithFlows(Flow{
		Name:       "boom",
		Triggers:   []string{"boom"},
		PreConsent: true,
		Action:     func(context.Context, *Turn) error { panic("kaboom") },
	}))
	err := r.Dispatch(context.Background(), models.InboundMessage{From: testPhone, Text: "boom"})
	if err == nil {
		t.Fatal("expected error from panicking flow")
	}
	if !containsText(h.sender.To(testPhone), ApologyText) {
		t.Error("expected apology after panic")
	}
	if h.sink.count(EventFlowError) != 1 {
		t.Error("expected flow_error event")
	}

	// Other users are unaffected.
	h.sender.Reset()
	if err := r.Dispatch(context.Background(), models.InboundMessage{From: "573009999999", Text: "nada"}); err != nil {
		t.Errorf("unexpected error for other user: %v", err)
	}
}

type failingCustomers struct {
	store.CustomerRepo
}

func (failingCustomers) UpsertCustomer(context.Context, *models.Customer) error {
	return errors.New("disk full")
}

func TestDispatch_PersistenceErrorSendsApology(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Customers = failingCustomers{d.Customers} })
	h.consent()
	h.mustTap(btnOrder)
	h.sender.Reset()
	if err := h.tap(btnHome); err == nil {
		t.Fatal("expected persistence error")
	}
	msgs := h.sender.To(testPhone)
	if len(msgs) != 1 || msgs[0].Text != ApologyText {
		t.Errorf("expected only the apology, got %+v", msgs)
	}
}

func TestDispatch_InactivityClosesConversationOnce(t *testing.T) {
	h := newHarness(t)
	h.consent()
	h.mustSay("revocar")
	for i := 0; i < 3; i++ {
		h.clock.Advance(30 * time.Second)
		h.say("menu")
	}
	if h.timers.Active() != 1 {
		t.Fatalf("expected one live timer, got %d", h.timers.Active())
	}
	h.sender.Reset()
	h.clock.Advance(time.Minute)
	msgs := h.sender.To(testPhone)
	if len(msgs) != 1 || msgs[0].Text != ClosingText {
		t.Fatalf("expected one closing message, got %+v", msgs)
	}
	if h.timers.Active() != 0 {
		t.Error("expected timer removed after firing")
	}
	h.clock.Advance(10 * time.Minute)
	if len(h.sender.To(testPhone)) != 1 {
		t.Error("closing message must not repeat")
	}
}

func TestDispatch_ExpireReleasesCapture(t *testing.T) {
	h := newHarness(t)
	h.consent()
	h.mustSay("revocar")
	if err := h.router.Expire(context.Background(), testPhone); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	sess := h.session()
	if sess.Has(session.KeyCapture) || sess.Has(session.KeyAwaitingRevocation) {
		t.Errorf("expected captures released, got %v", sess)
	}
	if !sess.Has(session.KeyConsent) {
		t.Error("consent must survive inactivity")
	}
}

func TestDispatch_LogsConversation(t *testing.T) {
	h := newHarness(t)
	h.consent()
	h.mustSay("recetas")
	conv, err := h.store.GetConversation(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	var inbound, outbound int
	for _, m := range conv.Messages {
		if m.Role == models.RoleCustomer {
			inbound++
		} else {
			outbound++
		}
	}
	if inbound != 3 {
		t.Errorf("expected 3 inbound messages, got %d", inbound)
	}
	// policy prompt, thanks, two menu messages, recipes menu
	if outbound != 5 {
		t.Errorf("expected 5 outbound messages, got %d", outbound)
	}
	if conv.CurrentFlow != FlowRecipes {
		t.Errorf("expected current flow %s, got %s", FlowRecipes, conv.CurrentFlow)
	}
}

func TestDispatch_EmptySender(t *testing.T) {
	h := newHarness(t)
	if err := h.router.Dispatch(context.Background(), models.InboundMessage{Text: "hola"}); !errors.Is(err, models.ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
}
