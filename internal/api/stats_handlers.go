package api

import (
	"net/http"

	"github.com/avellano/avellano-bot/internal/access"
	"github.com/avellano/avellano-bot/internal/models"
)

type customerStats struct {
	Total    int `json:"total"`
	Home     int `json:"hogar"`
	Business int `json:"negocio"`
	Today    int `json:"hoy"`
}

type statsResponse struct {
	Customers     customerStats             `json:"clientes"`
	Orders        map[models.OrderState]int `json:"pedidos"`
	Conversations int                       `json:"conversaciones"`
}

// statsHandler handles GET /api/stats, counting only what the caller may see.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var resp statsResponse

	cs, err := s.scope(r, access.Customers)
	if err != nil {
		writeError(w, "statsHandler", err)
		return
	}
	customers, err := s.st.ListCustomers(ctx, cs.CustomerFilter(models.CustomerFilter{}))
	if err != nil {
		writeError(w, "statsHandler", err)
		return
	}
	y, m, d := s.now().Date()
	for _, c := range customers {
		resp.Customers.Total++
		if c.Type == models.CustomerHome {
			resp.Customers.Home++
		} else if c.Type.IsBusiness() {
			resp.Customers.Business++
		}
		if cy, cm, cd := c.RegisteredAt.In(s.now().Location()).Date(); cy == y && cm == m && cd == d {
			resp.Customers.Today++
		}
	}

	ords, err := s.scope(r, access.Orders)
	if err != nil {
		writeError(w, "statsHandler", err)
		return
	}
	resp.Orders = map[models.OrderState]int{
		models.OrderPending:    0,
		models.OrderInProgress: 0,
		models.OrderFulfilled:  0,
		models.OrderCanceled:   0,
	}
	counts, err := s.st.CountOrdersByState(ctx, ords.OrderFilter(models.OrderFilter{}))
	if err != nil {
		writeError(w, "statsHandler", err)
		return
	}
	for st, n := range counts {
		resp.Orders[st] = n
	}

	vs, err := s.scope(r, access.Conversations)
	if err != nil {
		writeError(w, "statsHandler", err)
		return
	}
	convs, err := s.st.ListConversations(ctx, vs.ConversationFilter(models.ConversationFilter{}))
	if err != nil {
		writeError(w, "statsHandler", err)
		return
	}
	resp.Conversations = len(convs)

	writeJSONResponse(w, http.StatusOK, models.Success(resp))
}
