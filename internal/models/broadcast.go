package models

import "time"

// AudienceKind selects how broadcast recipients are chosen.
type AudienceKind string

const (
	AudienceAll      AudienceKind = "todos"
	AudienceHome     AudienceKind = "hogar"
	AudienceBusiness AudienceKind = "negocios"
	AudienceCity     AudienceKind = "ciudad"
	AudienceType     AudienceKind = "tipo"
	AudienceCustom   AudienceKind = "personalizado"
)

// IsValid reports whether k is a known audience kind.
func (k AudienceKind) IsValid() bool {
	switch k {
	case AudienceAll, AudienceHome, AudienceBusiness, AudienceCity, AudienceType, AudienceCustom:
		return true
	}
	return false
}

// Audience describes who receives a broadcast.
type Audience struct {
	Kind   AudienceKind   `json:"tipo" validate:"required,oneof=todos hogar negocios ciudad tipo personalizado"`
	Cities []string       `json:"ciudades,omitempty"`
	Types  []CustomerType `json:"tiposCliente,omitempty"`
	Phones []string       `json:"telefonos,omitempty"`
}

// BroadcastStatus tracks the delivery of a broadcast.
type BroadcastStatus string

const (
	BroadcastDraft     BroadcastStatus = "borrador"
	BroadcastScheduled BroadcastStatus = "programado"
	BroadcastRecurring BroadcastStatus = "recurrente"
	BroadcastSent      BroadcastStatus = "enviado"
	BroadcastFailed    BroadcastStatus = "fallido"
)

// DeliveryCounts reports how many recipients were reached.
type DeliveryCounts struct {
	Sent   int `json:"enviados"`
	Failed int `json:"fallidos"`
}

// Broadcast is a bulk message ("evento") sent to a set of customers.
type Broadcast struct {
	ID           string          `json:"_id"`
	Name         string          `json:"nombre"`
	Message      string          `json:"mensaje"`
	Audience     Audience        `json:"filtros"`
	ScheduledFor *time.Time      `json:"programadoPara,omitempty"`
	Cron         string          `json:"cron,omitempty"`
	Status       BroadcastStatus `json:"estado"`
	Counts       DeliveryCounts  `json:"destinatarios"`
	CreatedBy    string          `json:"creadoPor,omitempty"`
	CreatedAt    time.Time       `json:"fechaCreacion"`
	SentAt       *time.Time      `json:"fechaEnvio,omitempty"`
}
