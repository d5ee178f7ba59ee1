package access

import (
	"errors"
	"testing"

	"github.com/avellano/avellano-bot/internal/models"
)

func user(role models.Role, op models.Responsable) *models.User {
	return &models.User{ID: "u", Role: role, OperatorType: op, Active: true}
}

func TestEnforcer_Can(t *testing.T) {
	e, err := NewEnforcer()
	if err != nil {
		t.Fatalf("NewEnforcer failed: %v", err)
	}
	admin := user(models.RoleAdmin, "")
	operator := user(models.RoleOperator, models.ResponsableHoreca)
	support := user(models.RoleSupport, "")
	inactive := user(models.RoleAdmin, "")
	inactive.Active = false

	cases := []struct {
		name string
		u    *models.User
		obj  string
		act  string
		want bool
	}{
		{"admin deletes customers", admin, Customers, Delete, true},
		{"admin manages users", admin, Users, Write, true},
		{"admin sends broadcasts", admin, Broadcasts, Write, true},
		{"operator reads customers", operator, Customers, Read, true},
		{"operator cannot delete customers", operator, Customers, Delete, false},
		{"operator updates orders", operator, Orders, Write, true},
		{"operator cannot list users", operator, Users, Read, false},
		{"operator cannot broadcast", operator, Broadcasts, Write, false},
		{"support reads orders by default", support, Orders, Read, true},
		{"support cannot read conversations by default", support, Conversations, Read, false},
		{"support cannot read customers", support, Customers, Read, false},
		{"support reads stats", support, Stats, Read, true},
		{"inactive user denied", inactive, Customers, Read, false},
		{"nil user denied", nil, Stats, Read, false},
	}
	for _, tc := range cases {
		if got := e.Can(tc.u, tc.obj, tc.act); got != tc.want {
			t.Errorf("%s: Can = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEnforcer_SupportVisibility(t *testing.T) {
	e, err := NewEnforcer(WithSupportVisibility(false, true))
	if err != nil {
		t.Fatalf("NewEnforcer failed: %v", err)
	}
	support := user(models.RoleSupport, "")
	if e.Can(support, Orders, Read) {
		t.Error("support should not see orders")
	}
	if !e.Can(support, Conversations, Read) {
		t.Error("support should see conversations")
	}
}

func TestScopeFor(t *testing.T) {
	e, _ := NewEnforcer()
	phones := func(r models.Responsable) ([]string, error) {
		if r == models.ResponsableHoreca {
			return []string{"573001", "573002"}, nil
		}
		return nil, nil
	}

	s, err := e.ScopeFor(user(models.RoleAdmin, ""), Orders, phones)
	if err != nil || !s.All || !s.AllowsPhone("anything") {
		t.Errorf("admin scope = %+v, %v", s, err)
	}

	s, _ = e.ScopeFor(user(models.RoleOperator, models.ResponsableHoreca), Orders, phones)
	if !s.AllowsPhone("573001") || s.AllowsPhone("573999") {
		t.Errorf("operator order scope = %+v", s)
	}
	f := s.OrderFilter(models.OrderFilter{State: models.OrderPending})
	if len(f.Phones) != 2 || f.State != models.OrderPending {
		t.Errorf("unexpected order filter %+v", f)
	}

	s, _ = e.ScopeFor(user(models.RoleOperator, models.ResponsableHoreca), Customers, phones)
	cf := s.CustomerFilter(models.CustomerFilter{})
	if cf.Responsable != models.ResponsableHoreca || cf.Phones != nil {
		t.Errorf("unexpected customer filter %+v", cf)
	}
	if s.AllowsCustomer(&models.Customer{Responsable: models.ResponsableWholesale}) {
		t.Error("operator must not see other responsables' customers")
	}

	// An operator with no customers sees no orders.
	s, _ = e.ScopeFor(user(models.RoleOperator, models.ResponsableWholesale), Orders, phones)
	if f := s.OrderFilter(models.OrderFilter{}); f.Phones == nil || len(f.Phones) != 0 {
		t.Errorf("expected empty phone filter, got %+v", f)
	}

	// An operator without a type sees nothing.
	s, _ = e.ScopeFor(user(models.RoleOperator, ""), Customers, phones)
	if !s.None || s.CustomerFilter(models.CustomerFilter{}).Phones == nil {
		t.Errorf("expected empty scope, got %+v", s)
	}

	s, _ = e.ScopeFor(user(models.RoleSupport, ""), Customers, phones)
	if !s.None {
		t.Errorf("support must see no customers, got %+v", s)
	}
	s, _ = e.ScopeFor(user(models.RoleSupport, ""), Orders, phones)
	if !s.All {
		t.Errorf("support sees all orders by default, got %+v", s)
	}
}

func TestScopeFor_LookupError(t *testing.T) {
	e, _ := NewEnforcer()
	boom := errors.New("db down")
	_, err := e.ScopeFor(user(models.RoleOperator, models.ResponsableHoreca), Conversations,
		func(models.Responsable) ([]string, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Errorf("expected lookup error, got %v", err)
	}
}
