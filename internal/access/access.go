// Package access decides what each dashboard role may do and which records
// it may see.
//
// Role permissions are a casbin ACL model keyed by role (github.com/casbin/casbin/v2) built
// in code. Record visibility is computed by Scope, which turns a user into
// store filters.
package access

import (
	"fmt"
	"log/slog"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/avellano/avellano-bot/internal/models"
)

// Resources.
const (
	Customers     = "clientes"
	Orders        = "pedidos"
	Conversations = "conversaciones"
	Users         = "usuarios"
	Broadcasts    = "eventos"
	Stats         = "stats"
)

// Actions.
const (
	Read   = "read"
	Write  = "write"
	Delete = "delete"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// Opts holds the visibility switches for the support role.
type Opts struct {
	SupportSeesOrders        bool
	SupportSeesConversations bool
}

// Option configures an Enforcer.
type Option func(*Opts)

// WithSupportVisibility sets what the support role may read.
func WithSupportVisibility(orders, conversations bool) Option {
	return func(o *Opts) {
		o.SupportSeesOrders = orders
		o.SupportSeesConversations = conversations
	}
}

// Enforcer answers permission questions for dashboard users.
type Enforcer struct {
	e    *casbin.Enforcer
	opts Opts
}

// NewEnforcer builds the role policy.
func NewEnforcer(opts ...Option) (*Enforcer, error) {
	cfg := Opts{SupportSeesOrders: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load access model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create access enforcer: %w", err)
	}

	admin, operator, support := string(models.RoleAdmin), string(models.RoleOperator), string(models.RoleSupport)
	policies := [][]interface{}{
		{admin, "*", "*"},
		{operator, Customers, Read},
		{operator, Orders, Read},
		{operator, Orders, Write},
		{operator, Conversations, Read},
		{operator, Stats, Read},
		{support, Stats, Read},
	}
	if cfg.SupportSeesOrders {
		policies = append(policies, []interface{}{support, Orders, Read}, []interface{}{support, Orders, Write})
	}
	if cfg.SupportSeesConversations {
		policies = append(policies, []interface{}{support, Conversations, Read})
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p...); err != nil {
			return nil, fmt.Errorf("failed to add policy %v: %w", p, err)
		}
	}
	return &Enforcer{e: e, opts: cfg}, nil
}

// Can reports whether u may perform act on obj. Inactive users may do nothing.
func (a *Enforcer) Can(u *models.User, obj, act string) bool {
	if u == nil || !u.Active || !u.Role.IsValid() {
		return false
	}
	ok, err := a.e.Enforce(string(u.Role), obj, act)
	if err != nil {
		slog.Error("Access.Can: enforce failed", "role", u.Role, "obj", obj, "act", act, "error", err)
		return false
	}
	return ok
}

// Scope is the set of records a user may see. A nil Phones means everything;
// a non-nil empty Phones means nothing.
type Scope struct {
	All         bool
	Responsable models.Responsable
	Phones      []string
	None        bool
}

// ScopeFor computes u's record visibility for obj. phonesFor resolves the
// phones of customers assigned to a responsable and is only called for
// operators reading orders or conversations.
func (a *Enforcer) ScopeFor(u *models.User, obj string, phonesFor func(models.Responsable) ([]string, error)) (Scope, error) {
	if !a.Can(u, obj, Read) {
		return Scope{None: true}, nil
	}
	switch u.Role {
	case models.RoleAdmin:
		return Scope{All: true}, nil
	case models.RoleSupport:
		// Support never sees customer records.
		if obj == Customers {
			return Scope{None: true}, nil
		}
		return Scope{All: true}, nil
	}
	if !u.OperatorType.IsValid() {
		return Scope{None: true}, nil
	}
	s := Scope{Responsable: u.OperatorType}
	if obj == Orders || obj == Conversations {
		phones, err := phonesFor(u.OperatorType)
		if err != nil {
			return Scope{}, err
		}
		if phones == nil {
			phones = []string{}
		}
		s.Phones = phones
	}
	return s, nil
}

// CustomerFilter narrows f to the scope.
func (s Scope) CustomerFilter(f models.CustomerFilter) models.CustomerFilter {
	if s.None {
		f.Phones = []string{}
		return f
	}
	if s.Responsable != "" {
		f.Responsable = s.Responsable
	}
	return f
}

// OrderFilter narrows f to the scope.
func (s Scope) OrderFilter(f models.OrderFilter) models.OrderFilter {
	if s.None {
		f.Phones = []string{}
		return f
	}
	if s.Phones != nil {
		f.Phones = s.Phones
	}
	return f
}

// ConversationFilter narrows f to the scope.
func (s Scope) ConversationFilter(f models.ConversationFilter) models.ConversationFilter {
	if s.None {
		f.Phones = []string{}
		return f
	}
	if s.Phones != nil {
		f.Phones = s.Phones
	}
	return f
}

// AllowsPhone reports whether a record belonging to phone is visible.
func (s Scope) AllowsPhone(phone string) bool {
	if s.None {
		return false
	}
	if s.Phones == nil {
		return true
	}
	for _, p := range s.Phones {
		if p == phone {
			return true
		}
	}
	return false
}

// AllowsCustomer reports whether c is visible.
func (s Scope) AllowsCustomer(c *models.Customer) bool {
	if s.None {
		return false
	}
	return s.Responsable == "" || c.Responsable == s.Responsable
}
