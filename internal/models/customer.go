package models

import "time"

// CustomerType classifies a customer.
type CustomerType string

const (
	CustomerHome               CustomerType = "hogar"
	CustomerStore              CustomerType = "tienda"
	CustomerGrillHouse         CustomerType = "asadero"
	CustomerStandardRestaurant CustomerType = "restaurante_estandar"
	CustomerPremiumRestaurant  CustomerType = "restaurante_premium"
	CustomerWholesaler         CustomerType = "mayorista"
)

// IsValid reports whether t is a known customer type.
func (t CustomerType) IsValid() bool {
	switch t {
	case CustomerHome, CustomerStore, CustomerGrillHouse, CustomerStandardRestaurant,
		CustomerPremiumRestaurant, CustomerWholesaler:
		return true
	}
	return false
}

// IsBusiness reports whether t is any non-home type.
func (t CustomerType) IsBusiness() bool {
	return t.IsValid() && t != CustomerHome
}

// Responsable is the staff role a customer is assigned to. Operators use it
// as their visibility scope in the dashboard.
type Responsable string

const (
	ResponsableMassMarket  Responsable = "coordinador_masivos"
	ResponsableSalesDirect Responsable = "director_comercial"
	ResponsableHoreca      Responsable = "ejecutivo_horecas"
	ResponsableWholesale   Responsable = "mayorista"
)

// IsValid reports whether r is a known responsible role.
func (r Responsable) IsValid() bool {
	switch r {
	case ResponsableMassMarket, ResponsableSalesDirect, ResponsableHoreca, ResponsableWholesale:
		return true
	}
	return false
}

// ResponsableFor maps a customer type to the role that handles it.
func ResponsableFor(t CustomerType) Responsable {
	switch t {
	case CustomerStore, CustomerGrillHouse:
		return ResponsableSalesDirect
	case CustomerStandardRestaurant, CustomerPremiumRestaurant:
		return ResponsableHoreca
	case CustomerWholesaler:
		return ResponsableWholesale
	default:
		return ResponsableMassMarket
	}
}

// CustomerStatus is the lifecycle status of a customer record.
type CustomerStatus string

const (
	CustomerActive   CustomerStatus = "activo"
	CustomerInactive CustomerStatus = "inactivo"
)

// Customer is a WhatsApp contact identified by phone number.
//
// Customers are never hard-deleted by the bot; revoking consent is a soft state
// change. Only the dashboard administrator may delete a record.
type Customer struct {
	Phone              string       `json:"telefono"`
	Name               string       `json:"nombre,omitempty"`
	Type               CustomerType `json:"tipoCliente"`
	BusinessName       string       `json:"nombreNegocio,omitempty"`
	City               string       `json:"ciudad,omitempty"`
	Address            string       `json:"direccion,omitempty"`
	ContactPerson      string       `json:"personaContacto,omitempty"`
	Responsable        Responsable  `json:"responsable,omitempty"`
	ProductsOfInterest string       `json:"productosInteres,omitempty"`

	PolicyAccepted   bool           `json:"aceptaPoliticas"`
	PolicyAcceptedAt *time.Time     `json:"fechaAceptacionPoliticas,omitempty"`
	PolicyRevoked    bool           `json:"politicasRevocadas"`
	RevokedAt        *time.Time     `json:"fechaRevocacion,omitempty"`
	Status           CustomerStatus `json:"estado"`

	RegisteredAt     time.Time `json:"fechaRegistro"`
	LastInteraction  time.Time `json:"ultimaInteraccion"`
	InteractionCount int       `json:"conversaciones"`
}

// HasConsent reports whether the customer accepted the data policy and has not revoked it.
func (c *Customer) HasConsent() bool {
	return c != nil && c.PolicyAccepted && !c.PolicyRevoked
}

// AcceptPolicy records consent at the given time and reactivates the customer.
func (c *Customer) AcceptPolicy(at time.Time) {
	c.PolicyAccepted = true
	c.PolicyRevoked = false
	c.RevokedAt = nil
	t := at
	c.PolicyAcceptedAt = &t
	c.Status = CustomerActive
}

// RevokePolicy withdraws consent at the given time. The record is kept.
func (c *Customer) RevokePolicy(at time.Time) {
	c.PolicyAccepted = false
	c.PolicyRevoked = true
	t := at
	c.RevokedAt = &t
	c.Status = CustomerInactive
}

// CustomerFilter restricts customer listings.
type CustomerFilter struct {
	// Responsable limits results to one responsible role when set.
	Responsable Responsable
	Type        CustomerType
	// BusinessOnly excludes home customers.
	BusinessOnly bool
	Cities       []string
	Types        []CustomerType
	Phones       []string
	// ConsentingOnly keeps active customers with accepted, unrevoked consent.
	ConsentingOnly bool
	Limit          int
}
