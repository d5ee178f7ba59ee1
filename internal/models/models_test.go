package models

import (
	"errors"
	"testing"
	"time"
)

func testSnapshot() CustomerSnapshot {
	return CustomerSnapshot{Phone: "573001112233", CustomerType: CustomerStore, BusinessName: "Tienda La 14", City: "Ibagué"}
}

func TestNewOrder_TotalsReconcile(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	lines := []OrderLine{
		{Product: "Pollo entero", Quantity: 3, UnitPrice: 18500},
		{Product: "Alas", Quantity: 2, UnitPrice: 12000},
	}
	o, err := NewOrder("id1", FormatOrderCode(at, 1), testSnapshot(), lines, Coordinator{CoordinatorName: "Director Comercial"}, at)
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	if o.Items[0].Subtotal != 55500 || o.Items[1].Subtotal != 24000 {
		t.Errorf("unexpected subtotals: %+v", o.Items)
	}
	if o.Total != 79500 {
		t.Errorf("expected total 79500, got %d", o.Total)
	}
	if !o.Reconciles() {
		t.Error("expected order to reconcile")
	}
	if o.State != OrderPending || len(o.History) != 1 || o.History[0].State != OrderPending {
		t.Errorf("unexpected initial state/history: %s %+v", o.State, o.History)
	}
	if o.Code != "AV-20240101-0001" {
		t.Errorf("unexpected code %q", o.Code)
	}

	o.Total++
	if o.Reconciles() {
		t.Error("tampered total should not reconcile")
	}
}

func TestNewOrder_RejectsBadInput(t *testing.T) {
	at := time.Now()
	cases := map[string][]OrderLine{
		"no lines":      nil,
		"zero quantity": {{Product: "Alas", Quantity: 0, UnitPrice: 1}},
		"empty name":    {{Product: " ", Quantity: 1, UnitPrice: 1}},
		"negative":      {{Product: "Alas", Quantity: 1, UnitPrice: -1}},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewOrder("id", "code", testSnapshot(), lines, Coordinator{}, at); !errors.Is(err, ErrInvalidOrder) {
				t.Errorf("expected ErrInvalidOrder, got %v", err)
			}
		})
	}
	if _, err := NewOrder("id", "code", CustomerSnapshot{}, []OrderLine{{Product: "a", Quantity: 1}}, Coordinator{}, at); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
}

func TestOrderTransitions(t *testing.T) {
	all := []OrderState{OrderPending, OrderInProgress, OrderFulfilled, OrderCanceled}
	allowed := map[OrderState]map[OrderState]bool{
		OrderPending:    {OrderInProgress: true, OrderCanceled: true},
		OrderInProgress: {OrderFulfilled: true, OrderCanceled: true},
	}
	for _, from := range all {
		for _, to := range all {
			o := &Order{State: from, History: []StateChange{{State: from}}}
			err := o.Transition(to, StateChange{OperatorEmail: "op@avellano.com", Note: "motivo"})
			if allowed[from][to] {
				if err != nil {
					t.Errorf("%s -> %s: unexpected error %v", from, to, err)
				}
				if o.State != to || len(o.History) != 2 || o.History[1].State != to {
					t.Errorf("%s -> %s: state/history not updated: %s %+v", from, to, o.State, o.History)
				}
				continue
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", from, to, err)
			}
			if o.State != from || len(o.History) != 1 {
				t.Errorf("%s -> %s: order mutated on rejected transition", from, to)
			}
		}
	}
}

func TestOrderCancelRequiresNote(t *testing.T) {
	o := &Order{State: OrderInProgress}
	if err := o.Transition(OrderCanceled, StateChange{Note: "  "}); !errors.Is(err, ErrCancelNoteRequired) {
		t.Fatalf("expected ErrCancelNoteRequired, got %v", err)
	}
	if o.State != OrderInProgress || len(o.History) != 0 {
		t.Error("order should be unchanged")
	}
	if err := o.Transition(OrderCanceled, StateChange{Note: "cliente desistió"}); err != nil {
		t.Fatalf("cancel with note failed: %v", err)
	}
	if o.CancelNotes != "cliente desistió" {
		t.Errorf("cancel note not stored: %q", o.CancelNotes)
	}
}

func TestCustomerConsent(t *testing.T) {
	c := &Customer{Phone: "57300"}
	if c.HasConsent() {
		t.Error("new customer should not have consent")
	}
	now := time.Now()
	c.AcceptPolicy(now)
	if !c.HasConsent() || c.Status != CustomerActive || c.PolicyAcceptedAt == nil {
		t.Errorf("accept did not record consent: %+v", c)
	}
	c.RevokePolicy(now)
	if c.HasConsent() || !c.PolicyRevoked || c.Status != CustomerInactive || c.RevokedAt == nil {
		t.Errorf("revoke did not record revocation: %+v", c)
	}
	var nilCustomer *Customer
	if nilCustomer.HasConsent() {
		t.Error("nil customer should not have consent")
	}
}

func TestResponsableFor(t *testing.T) {
	cases := map[CustomerType]Responsable{
		CustomerHome:               ResponsableMassMarket,
		CustomerStore:              ResponsableSalesDirect,
		CustomerGrillHouse:         ResponsableSalesDirect,
		CustomerPremiumRestaurant:  ResponsableHoreca,
		CustomerStandardRestaurant: ResponsableHoreca,
		CustomerWholesaler:         ResponsableWholesale,
	}
	for ct, want := range cases {
		if got := ResponsableFor(ct); got != want {
			t.Errorf("ResponsableFor(%s) = %s, want %s", ct, got, want)
		}
	}
}
