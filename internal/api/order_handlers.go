package api

import (
	"net/http"

	"github.com/avellano/avellano-bot/internal/access"
	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/orders"
)

type setOrderStateRequest struct {
	State models.OrderState `json:"estado" validate:"required,oneof=pendiente en_proceso atendido cancelado"`
	Note  string            `json:"nota"`
}

// listOrdersHandler handles GET /api/pedidos?estado=&limit=.
func (s *Server) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r, access.Orders)
	if err != nil {
		writeError(w, "listOrdersHandler", err)
		return
	}
	f := models.OrderFilter{Limit: queryLimit(r)}
	if st := models.OrderState(r.URL.Query().Get("estado")); st != "" {
		if !st.IsValid() {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("estado inválido"))
			return
		}
		f.State = st
	}
	list, err := s.st.ListOrders(r.Context(), scope.OrderFilter(f))
	if err != nil {
		writeError(w, "listOrdersHandler", err)
		return
	}
	if list == nil {
		list = []models.Order{}
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessList(list, len(list)))
}

// scopedOrder loads an order by id or code and checks the caller may see it.
func (s *Server) scopedOrder(w http.ResponseWriter, r *http.Request, op string) (*models.Order, bool) {
	scope, err := s.scope(r, access.Orders)
	if err != nil {
		writeError(w, op, err)
		return nil, false
	}
	o, err := s.st.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, op, err)
		return nil, false
	}
	if !scope.AllowsPhone(o.Phone) {
		writeJSONResponse(w, http.StatusForbidden, models.Error("Pedido fuera de tu alcance"))
		return nil, false
	}
	return o, true
}

func (s *Server) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	o, ok := s.scopedOrder(w, r, "getOrderHandler")
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(o))
}

// setOrderStateHandler handles PATCH /api/pedidos/{id}/estado. Taking an
// order notifies the customer; the response reports whether that worked.
func (s *Server) setOrderStateHandler(w http.ResponseWriter, r *http.Request) {
	var req setOrderStateRequest
	if !s.decodeBody(w, r, "setOrderStateHandler", &req) {
		return
	}
	o, ok := s.scopedOrder(w, r, "setOrderStateHandler")
	if !ok {
		return
	}
	u := currentUser(r)
	res, err := s.orders.Transition(r.Context(), o.ID, req.State, orders.Operator{ID: u.ID, Email: u.Email}, req.Note)
	if err != nil {
		writeError(w, "setOrderStateHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}
