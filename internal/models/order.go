package models

import (
	"fmt"
	"strings"
	"time"
)

// OrderState is the lifecycle state of an order.
type OrderState string

const (
	OrderPending    OrderState = "pendiente"
	OrderInProgress OrderState = "en_proceso"
	OrderFulfilled  OrderState = "atendido"
	OrderCanceled   OrderState = "cancelado"
)

// orderTransitions lists the states reachable in one step from each state.
// Terminal states have no entry.
var orderTransitions = map[OrderState][]OrderState{
	OrderPending:    {OrderInProgress, OrderCanceled},
	OrderInProgress: {OrderFulfilled, OrderCanceled},
}

// IsValid reports whether s is a known order state.
func (s OrderState) IsValid() bool {
	switch s {
	case OrderPending, OrderInProgress, OrderFulfilled, OrderCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s OrderState) IsTerminal() bool {
	return s == OrderFulfilled || s == OrderCanceled
}

// CanTransition reports whether from -> to is a permitted single step.
func CanTransition(from, to OrderState) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LineItem is one product line of an order. Prices are whole Colombian pesos.
type LineItem struct {
	Product   string `json:"nombre"`
	Quantity  int    `json:"cantidad"`
	UnitPrice int64  `json:"precioUnitario"`
	Subtotal  int64  `json:"subtotal"`
}

// StateChange is one append-only entry of an order's history.
type StateChange struct {
	State         OrderState `json:"estado"`
	At            time.Time  `json:"fecha"`
	OperatorID    string     `json:"operadorId,omitempty"`
	OperatorEmail string     `json:"operadorEmail,omitempty"`
	Note          string     `json:"nota,omitempty"`
}

// CustomerSnapshot holds the customer fields copied onto an order when it is created.
type CustomerSnapshot struct {
	Phone         string       `json:"telefono"`
	CustomerType  CustomerType `json:"tipoCliente"`
	BusinessName  string       `json:"nombreNegocio,omitempty"`
	City          string       `json:"ciudad,omitempty"`
	Address       string       `json:"direccion,omitempty"`
	ContactPerson string       `json:"personaContacto,omitempty"`
}

// SnapshotOf copies the order-relevant fields of a customer.
func SnapshotOf(c *Customer) CustomerSnapshot {
	return CustomerSnapshot{
		Phone:         c.Phone,
		CustomerType:  c.Type,
		BusinessName:  c.BusinessName,
		City:          c.City,
		Address:       c.Address,
		ContactPerson: c.ContactPerson,
	}
}

// Coordinator is the staff member responsible for an order.
type Coordinator struct {
	CoordinatorName  string `json:"coordinadorAsignado"`
	CoordinatorPhone string `json:"telefonoCoordinador"`
}

// Order is a customer order. Snapshot fields are set once by NewOrder and the
// state only changes through Transition.
type Order struct {
	ID   string `json:"_id"`
	Code string `json:"idPedido"`
	CustomerSnapshot
	Items []LineItem `json:"productos"`
	Total int64      `json:"total"`
	Coordinator
	State       OrderState    `json:"estado"`
	CreatedAt   time.Time     `json:"fechaPedido"`
	Notes       string        `json:"notas,omitempty"`
	CancelNotes string        `json:"notasCancelacion,omitempty"`
	History     []StateChange `json:"historialEstados"`
}

// OrderLine is the input for one line of a new order.
type OrderLine struct {
	Product   string `json:"producto"`
	Quantity  int    `json:"cantidad"`
	UnitPrice int64  `json:"precio"`
}

// NewOrder builds a pending order, computing every subtotal and the total.
func NewOrder(id, code string, snapshot CustomerSnapshot, lines []OrderLine, coord Coordinator, at time.Time) (*Order, error) {
	if snapshot.Phone == "" {
		return nil, ErrEmptyRecipient
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no lines", ErrInvalidOrder)
	}
	o := &Order{
		ID:               id,
		Code:             code,
		CustomerSnapshot: snapshot,
		Coordinator:      coord,
		State:            OrderPending,
		CreatedAt:        at,
		History:          []StateChange{{State: OrderPending, At: at}},
	}
	for _, l := range lines {
		if strings.TrimSpace(l.Product) == "" || l.Quantity <= 0 || l.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: bad line %q", ErrInvalidOrder, l.Product)
		}
		sub := int64(l.Quantity) * l.UnitPrice
		o.Items = append(o.Items, LineItem{Product: l.Product, Quantity: l.Quantity, UnitPrice: l.UnitPrice, Subtotal: sub})
		o.Total += sub
	}
	return o, nil
}

// Reconciles reports whether every subtotal and the total are consistent.
func (o *Order) Reconciles() bool {
	var sum int64
	for _, it := range o.Items {
		if it.Subtotal != int64(it.Quantity)*it.UnitPrice {
			return false
		}
		sum += it.Subtotal
	}
	return sum == o.Total
}

// Transition moves the order to state to and appends one history entry.
// The order is left unchanged when an error is returned.
func (o *Order) Transition(to OrderState, change StateChange) error {
	if !CanTransition(o.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.State, to)
	}
	if to == OrderCanceled && strings.TrimSpace(change.Note) == "" {
		return ErrCancelNoteRequired
	}
	change.State = to
	o.State = to
	if to == OrderCanceled {
		o.CancelNotes = change.Note
	}
	o.History = append(o.History, change)
	return nil
}

// FormatOrderCode renders the human-readable order id AV-YYYYMMDD-NNNN.
func FormatOrderCode(day time.Time, seq int) string {
	return fmt.Sprintf("AV-%s-%04d", day.Format("20060102"), seq)
}

// OrderFilter restricts order listings.
type OrderFilter struct {
	State OrderState
	Phone string
	// Phones limits results to these customers when non-nil. An empty non-nil
	// slice matches nothing.
	Phones []string
	Limit  int
}
