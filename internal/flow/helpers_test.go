package flow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avellano/avellano-bot/internal/inactivity"
	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/orders"
	"github.com/avellano/avellano-bot/internal/session"
	"github.com/avellano/avellano-bot/internal/store"
	"github.com/avellano/avellano-bot/internal/testutil"
)

var testNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) count(kind EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type harness struct {
	t        *testing.T
	router   *Router
	store    *store.SQLiteStore
	sessions *session.Memory
	sender   *testutil.RecordingSender
	sink     *recordingSink
	clock    *inactivity.FakeClock
	timers   *inactivity.Manager
}

type harnessOption func(*Deps)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	st := testutil.NewSQLiteStore(t)
	h := &harness{
		t:        t,
		store:    st,
		sessions: session.NewMemory(),
		sender:   &testutil.RecordingSender{},
		sink:     &recordingSink{},
		clock:    inactivity.NewFakeClock(testNow),
	}
	h.timers = inactivity.NewManager(inactivity.WithClock(h.clock), inactivity.WithTimeout(time.Minute))
	t.Cleanup(h.timers.Stop)
	now := func() time.Time { return testNow }
	deps := Deps{
		Sessions:      h.sessions,
		Customers:     st,
		Conversations: st,
		Sender:        h.sender,
		Orders:        orders.NewService(st, h.sender, orders.WithClock(now)),
		Timers:        h.timers,
		Events:        h.sink,
		Now:           now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.router = NewRouter(deps)
	return h
}

const testPhone = "573001234567"

func (h *harness) say(text string) error {
	h.t.Helper()
	return h.router.Dispatch(context.Background(), models.InboundMessage{From: testPhone, Text: text})
}

func (h *harness) tap(button string) error {
	h.t.Helper()
	return h.router.Dispatch(context.Background(), models.InboundMessage{From: testPhone, Text: button, Button: button})
}

func (h *harness) mustSay(text string) []models.OutboundMessage {
	h.t.Helper()
	h.sender.Reset()
	if err := h.say(text); err != nil {
		h.t.Fatalf("Dispatch(%q) failed: %v", text, err)
	}
	return h.sender.To(testPhone)
}

func (h *harness) mustTap(button string) []models.OutboundMessage {
	h.t.Helper()
	h.sender.Reset()
	if err := h.tap(button); err != nil {
		h.t.Fatalf("Dispatch(button %q) failed: %v", button, err)
	}
	return h.sender.To(testPhone)
}

func (h *harness) session() session.Values {
	return h.sessions.Get(context.Background(), testPhone)
}

func (h *harness) customer() *models.Customer {
	h.t.Helper()
	c, err := h.store.GetCustomer(context.Background(), testPhone)
	if err != nil {
		return nil
	}
	return c
}

// consent walks the welcome prompt and accepts the policy.
func (h *harness) consent() {
	h.t.Helper()
	h.mustSay("hola")
	h.mustTap(btnAccept)
	if !h.session().Has(session.KeyConsent) {
		h.t.Fatal("expected consent in session")
	}
}

func containsText(msgs []models.OutboundMessage, substr string) bool {
	for _, m := range msgs {
		if strings.Contains(m.Text, substr) {
			return true
		}
	}
	return false
}

func hasButton(msgs []models.OutboundMessage, label string) bool {
	for _, m := range msgs {
		for _, b := range m.Buttons {
			if b == label {
				return true
			}
		}
	}
	return false
}
