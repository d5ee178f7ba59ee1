package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/avellano/avellano-bot/internal/models"
)

type ctxKey int

const userKey ctxKey = iota

// currentUser returns the authenticated user stored by authenticated.
func currentUser(r *http.Request) *models.User {
	u, _ := r.Context().Value(userKey).(*models.User)
	return u
}

func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// loggingMiddleware logs the details of each HTTP request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)
		slog.Info("HTTP Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start),
			"ip", r.RemoteAddr,
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// securityHeadersMiddleware adds standard security headers.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Server: recovered from panic", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
				writeJSONResponse(w, http.StatusInternalServerError, models.Error(msgInternalError))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware allows the dashboard frontend origin. Without a configured
// FRONTEND_URL no CORS headers are sent.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.frontendURL != "" && origin == s.frontendURL {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

var errUnauthenticated = errors.New("missing or invalid access token")

// userFromToken resolves the bearer token of r to an active user.
func (s *Server) userFromToken(r *http.Request) (*models.User, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, errUnauthenticated
	}
	claims, err := s.tokens.ParseAccess(strings.TrimSpace(token))
	if err != nil {
		return nil, errUnauthenticated
	}
	u, err := s.st.GetUserByID(r.Context(), claims.UserID())
	if errors.Is(err, models.ErrNotFound) {
		return nil, errUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, errUnauthenticated
	}
	return u, nil
}

// authenticated rejects requests without a valid access token of an active user.
func (s *Server) authenticated(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.userFromToken(r)
		if errors.Is(err, errUnauthenticated) {
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("No autenticado"))
			return
		}
		if err != nil {
			writeError(w, "authenticated", err)
			return
		}
		h(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

// require is authenticated plus a role permission check on obj/act.
func (s *Server) require(obj, act string, h http.HandlerFunc) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		if !s.access.Can(u, obj, act) {
			slog.Warn("Server: permission denied", "user", u.Email, "role", u.Role, "obj", obj, "act", act)
			writeJSONResponse(w, http.StatusForbidden, models.Error("No tienes permiso para esta acción"))
			return
		}
		h(w, r)
	})
}
