package models

import "time"

// MessageRole identifies the author of a logged message.
type MessageRole string

const (
	RoleCustomer MessageRole = "usuario"
	RoleBot      MessageRole = "bot"
)

// InteractionType marks an important moment of a conversation.
type InteractionType string

const (
	InteractionRegistration InteractionType = "registro"
	InteractionOrder        InteractionType = "pedido"
	InteractionAdvisor      InteractionType = "asesor"
)

// LoggedMessage is one message of a conversation log.
type LoggedMessage struct {
	Role      MessageRole `json:"rol"`
	Text      string      `json:"mensaje"`
	Timestamp time.Time   `json:"timestamp"`
}

// Interaction is a denormalized marker used for dashboard summaries.
type Interaction struct {
	Type      InteractionType `json:"tipo"`
	Content   string          `json:"contenido"`
	Timestamp time.Time       `json:"timestamp"`
}

// Conversation is the append-only log of messages exchanged with one phone number.
type Conversation struct {
	Phone         string          `json:"telefono"`
	Messages      []LoggedMessage `json:"mensajes,omitempty"`
	Interactions  []Interaction   `json:"interaccionesImportantes,omitempty"`
	CurrentFlow   string          `json:"flujoActual,omitempty"`
	StartedAt     time.Time       `json:"fechaInicio"`
	LastMessageAt time.Time       `json:"fechaUltimoMensaje"`
	MessageCount  int             `json:"totalMensajes"`

	// Enrichment filled from the customer record for dashboard listings.
	CustomerName string       `json:"nombreCliente,omitempty"`
	BusinessName string       `json:"nombreNegocio,omitempty"`
	CustomerType CustomerType `json:"tipoCliente,omitempty"`
}

// ConversationFilter restricts conversation listings.
type ConversationFilter struct {
	// Phones limits results when non-nil; an empty non-nil slice matches nothing.
	Phones []string
	Limit  int
}
