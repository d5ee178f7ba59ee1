package orders

import (
	"fmt"
	"strings"

	"github.com/avellano/avellano-bot/internal/models"
)

// FormatCOP renders an amount of Colombian pesos as $12.345.
func FormatCOP(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

// StateLabel is the customer-facing name of an order state.
func StateLabel(s models.OrderState) string {
	switch s {
	case models.OrderPending:
		return "🕐 Pendiente"
	case models.OrderInProgress:
		return "🚚 En proceso"
	case models.OrderFulfilled:
		return "✅ Atendido"
	case models.OrderCanceled:
		return "❌ Cancelado"
	default:
		return string(s)
	}
}

func itemLines(o *models.Order) string {
	var b strings.Builder
	for _, it := range o.Items {
		fmt.Fprintf(&b, "• %d x %s = %s\n", it.Quantity, it.Product, FormatCOP(it.Subtotal))
	}
	return b.String()
}

func takenMessage(o *models.Order) string {
	return fmt.Sprintf("🚚 *Tu pedido %s está en proceso*\n\n%s\n💰 Total: %s\n\nNuestro equipo ya lo está preparando. ¡Gracias por confiar en *Avellano*! 💛",
		o.Code, itemLines(o), FormatCOP(o.Total))
}

func coordinatorMessage(o *models.Order) string {
	name := o.BusinessName
	if name == "" {
		name = o.ContactPerson
	}
	if name == "" {
		name = o.Phone
	}
	return fmt.Sprintf("🔔 *Nuevo pedido %s*\n\n👤 Cliente: %s\n📱 Teléfono: %s\n🏢 Tipo: %s\n🏙️ Ciudad: %s\n\n%s\n💰 Total: %s",
		o.Code, name, o.Phone, o.CustomerType, o.City, itemLines(o), FormatCOP(o.Total))
}
