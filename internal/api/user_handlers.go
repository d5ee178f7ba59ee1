package api

import (
	"log/slog"
	"net/http"

	"github.com/avellano/avellano-bot/internal/models"
)

type setRoleRequest struct {
	Role         models.Role        `json:"rol" validate:"required,oneof=administrador operador soporte"`
	OperatorType models.Responsable `json:"tipoOperador" validate:"omitempty,oneof=coordinador_masivos director_comercial ejecutivo_horecas mayorista"`
}

type setActiveRequest struct {
	Active *bool `json:"activo" validate:"required"`
}

func (s *Server) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.st.ListUsers(r.Context())
	if err != nil {
		writeError(w, "listUsersHandler", err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessList(users, len(users)))
}

func (s *Server) setUserRoleHandler(w http.ResponseWriter, r *http.Request) {
	var req setRoleRequest
	if !s.decodeBody(w, r, "setUserRoleHandler", &req) {
		return
	}
	if msg := checkOperatorType(req.Role, &req.OperatorType); msg != "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(msg))
		return
	}
	u, err := s.st.GetUserByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, "setUserRoleHandler", err)
		return
	}
	u.Role, u.OperatorType = req.Role, req.OperatorType
	if err := s.st.UpdateUser(r.Context(), u); err != nil {
		writeError(w, "setUserRoleHandler", err)
		return
	}
	slog.Info("Server.setUserRoleHandler: role updated", "user", u.Email, "role", u.Role, "by", currentUser(r).Email)
	writeJSONResponse(w, http.StatusOK, models.Success(u))
}

// setUserActiveHandler enables or disables an account. Disabling also
// revokes the stored refresh token.
func (s *Server) setUserActiveHandler(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if !s.decodeBody(w, r, "setUserActiveHandler", &req) {
		return
	}
	id := r.PathValue("id")
	if id == currentUser(r).ID && !*req.Active {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("No puedes desactivar tu propia cuenta"))
		return
	}
	u, err := s.st.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, "setUserActiveHandler", err)
		return
	}
	u.Active = *req.Active
	if err := s.st.UpdateUser(r.Context(), u); err != nil {
		writeError(w, "setUserActiveHandler", err)
		return
	}
	if !u.Active {
		if err := s.st.SetRefreshToken(r.Context(), u.ID, ""); err != nil {
			slog.Warn("Server.setUserActiveHandler: failed to revoke refresh token", "error", err, "user", u.ID)
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(u))
}

func (s *Server) deleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == currentUser(r).ID {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("No puedes eliminar tu propia cuenta"))
		return
	}
	if err := s.st.DeleteUser(r.Context(), id); err != nil {
		writeError(w, "deleteUserHandler", err)
		return
	}
	slog.Info("Server.deleteUserHandler: user deleted", "id", id, "by", currentUser(r).Email)
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}
