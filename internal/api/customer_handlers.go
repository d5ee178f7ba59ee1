package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/avellano/avellano-bot/internal/access"
	"github.com/avellano/avellano-bot/internal/models"
)

// queryLimit reads ?limit=, ignoring invalid values.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// listCustomersHandler handles GET /api/clientes?tipo=&ciudad=&limit=.
func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r, access.Customers)
	if err != nil {
		writeError(w, "listCustomersHandler", err)
		return
	}
	f := models.CustomerFilter{Limit: queryLimit(r)}
	q := r.URL.Query()
	if t := models.CustomerType(q.Get("tipo")); t != "" {
		if !t.IsValid() {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("tipo de cliente inválido"))
			return
		}
		f.Type = t
	}
	if city := strings.TrimSpace(q.Get("ciudad")); city != "" {
		f.Cities = []string{city}
	}
	customers, err := s.st.ListCustomers(r.Context(), scope.CustomerFilter(f))
	if err != nil {
		writeError(w, "listCustomersHandler", err)
		return
	}
	if customers == nil {
		customers = []models.Customer{}
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessList(customers, len(customers)))
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	scope, err := s.scope(r, access.Customers)
	if err != nil {
		writeError(w, "getCustomerHandler", err)
		return
	}
	c, err := s.st.GetCustomer(r.Context(), r.PathValue("telefono"))
	if err != nil {
		writeError(w, "getCustomerHandler", err)
		return
	}
	if !scope.AllowsCustomer(c) {
		writeJSONResponse(w, http.StatusForbidden, models.Error("Cliente fuera de tu alcance"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(c))
}

// deleteCustomerHandler is the administrative hard delete. The bot itself
// never deletes customers.
func (s *Server) deleteCustomerHandler(w http.ResponseWriter, r *http.Request) {
	phone := r.PathValue("telefono")
	if err := s.st.DeleteCustomer(r.Context(), phone); err != nil {
		writeError(w, "deleteCustomerHandler", err)
		return
	}
	// A cached consent tag would otherwise outlive the record.
	if err := s.clearSession(r.Context(), phone); err != nil {
		slog.Warn("Server.deleteCustomerHandler: failed to clear session", "phone", phone, "error", err)
	}
	slog.Info("Server.deleteCustomerHandler: customer deleted", "phone", phone, "by", currentUser(r).Email)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

func (s *Server) clearSession(ctx context.Context, phone string) error {
	if s.sessions != nil {
		return s.sessions.Clear(ctx, phone)
	}
	return s.st.DeleteSession(ctx, phone)
}
