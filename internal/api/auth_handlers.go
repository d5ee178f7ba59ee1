package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/avellano/avellano-bot/internal/auth"
	"github.com/avellano/avellano-bot/internal/models"
)

// decodeBody decodes the JSON body into dst and validates it. It writes the
// 400 response itself and reports whether the handler may continue.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, op string, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		slog.Warn("Server."+op+": failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Formato JSON inválido"))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		slog.Warn("Server."+op+": validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(validationMessage(err)))
		return false
	}
	return true
}

type registerRequest struct {
	Email        string             `json:"email" validate:"required,email"`
	Password     string             `json:"password" validate:"required,min=8"`
	Name         string             `json:"nombre" validate:"required"`
	Role         models.Role        `json:"rol" validate:"omitempty,oneof=administrador operador soporte"`
	OperatorType models.Responsable `json:"tipoOperador" validate:"omitempty,oneof=coordinador_masivos director_comercial ejecutivo_horecas mayorista"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type sessionResponse struct {
	User *models.User `json:"usuario"`
	auth.Pair
}

// registerHandler handles POST /api/auth/register. The first account is
// created without authentication and always becomes an administrator; after
// that only administrators may register users.
func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeBody(w, r, "registerHandler", &req) {
		return
	}
	n, err := s.st.CountUsers(r.Context())
	if err != nil {
		writeError(w, "registerHandler", err)
		return
	}
	if n == 0 {
		req.Role = models.RoleAdmin
		req.OperatorType = ""
		slog.Info("Server.registerHandler: bootstrapping first administrator", "email", req.Email)
	} else {
		caller, err := s.userFromToken(r)
		if err != nil {
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("No autenticado"))
			return
		}
		if caller.Role != models.RoleAdmin {
			writeJSONResponse(w, http.StatusForbidden, models.Error("Solo un administrador puede registrar usuarios"))
			return
		}
	}
	if req.Role == "" {
		req.Role = models.RoleOperator
	}
	if msg := checkOperatorType(req.Role, &req.OperatorType); msg != "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(msg))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, "registerHandler", err)
		return
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         req.Role,
		OperatorType: req.OperatorType,
		Active:       true,
		CreatedAt:    s.now(),
	}
	if err := s.st.CreateUser(r.Context(), u); err != nil {
		writeError(w, "registerHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(u))
}

// checkOperatorType requires an operator type for operators and clears it
// for the other roles.
func checkOperatorType(role models.Role, t *models.Responsable) string {
	if role != models.RoleOperator {
		*t = ""
		return ""
	}
	if !t.IsValid() {
		return "tipoOperador es obligatorio para el rol operador"
	}
	return ""
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeBody(w, r, "loginHandler", &req) {
		return
	}
	u, err := s.st.GetUserByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		writeError(w, "loginHandler", err)
		return
	}
	if u == nil || !u.Active || !auth.CheckPassword(u.PasswordHash, req.Password) {
		slog.Warn("Server.loginHandler: rejected login", "email", models.NormalizeEmail(req.Email))
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Credenciales inválidas"))
		return
	}
	s.issueSession(w, r, u, http.StatusOK)
}

func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, u *models.User, status int) {
	pair, err := s.tokens.IssuePair(u)
	if err != nil {
		writeError(w, "issueSession", err)
		return
	}
	if err := s.st.SetRefreshToken(r.Context(), u.ID, pair.RefreshToken); err != nil {
		writeError(w, "issueSession", err)
		return
	}
	now := s.now()
	if err := s.st.TouchLastAccess(r.Context(), u.ID, now); err != nil {
		slog.Warn("Server.issueSession: failed to update last access", "error", err, "user", u.ID)
	} else {
		u.LastAccess = &now
	}
	writeJSONResponse(w, status, models.Success(sessionResponse{User: u, Pair: pair}))
}

// refreshHandler rotates the token pair. The presented refresh token must be
// the one stored for the user, so each refresh token works once.
func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decodeBody(w, r, "refreshHandler", &req) {
		return
	}
	claims, err := s.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Token de refresco inválido"))
		return
	}
	u, err := s.st.GetUserByID(r.Context(), claims.UserID())
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		writeError(w, "refreshHandler", err)
		return
	}
	if u == nil || !u.Active || u.RefreshToken == "" || u.RefreshToken != req.RefreshToken {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Token de refresco inválido"))
		return
	}
	s.issueSession(w, r, u, http.StatusOK)
}

// logoutHandler drops the stored refresh token. It always succeeds.
func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err == nil && req.RefreshToken != "" {
		if claims, err := s.tokens.ParseRefresh(req.RefreshToken); err == nil {
			if err := s.st.SetRefreshToken(r.Context(), claims.UserID(), ""); err != nil {
				slog.Warn("Server.logoutHandler: failed to clear refresh token", "error", err)
			}
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(currentUser(r)))
}
