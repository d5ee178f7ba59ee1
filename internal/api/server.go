// Package api serves the Avellano dashboard REST API and the bot's webhook
// endpoints, and wires every component together in Run.
package api

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avellano/avellano-bot/internal/access"
	"github.com/avellano/avellano-bot/internal/auth"
	"github.com/avellano/avellano-bot/internal/broadcast"
	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/orders"
	"github.com/avellano/avellano-bot/internal/session"
	"github.com/avellano/avellano-bot/internal/store"
)

// Deps are the collaborators of the dashboard server. Broadcasts may be nil,
// in which case the eventos endpoints answer 500. Sessions is the bot's
// session store; when nil, deleting a customer clears the persisted session
// row only.
type Deps struct {
	Store      store.Store
	Orders     *orders.Service
	Broadcasts *broadcast.Service
	Tokens     *auth.TokenService
	Access     *access.Enforcer
	Sessions   session.Store
}

// Opts holds dashboard server settings.
type Opts struct {
	FrontendURL string
	Now         func() time.Time
}

// Option configures a Server.
type Option func(*Opts)

// WithFrontendURL allows cross-origin requests from the dashboard frontend.
func WithFrontendURL(url string) Option {
	return func(o *Opts) { o.FrontendURL = strings.TrimRight(url, "/") }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Server holds the dashboard API handlers.
type Server struct {
	st          store.Store
	orders      *orders.Service
	broadcasts  *broadcast.Service
	tokens      *auth.TokenService
	access      *access.Enforcer
	sessions    session.Store
	validate    *validator.Validate
	frontendURL string
	now         func() time.Time
}

// NewServer creates the dashboard server.
func NewServer(deps Deps, opts ...Option) *Server {
	cfg := Opts{Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		st:          deps.Store,
		orders:      deps.Orders,
		broadcasts:  deps.Broadcasts,
		tokens:      deps.Tokens,
		access:      deps.Access,
		sessions:    deps.Sessions,
		validate:    v,
		frontendURL: cfg.FrontendURL,
		now:         cfg.Now,
	}
}

// Handler returns the dashboard routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.registerHandler)
	mux.HandleFunc("POST /api/auth/login", s.loginHandler)
	mux.HandleFunc("POST /api/auth/refresh", s.refreshHandler)
	mux.HandleFunc("POST /api/auth/logout", s.logoutHandler)
	mux.Handle("GET /api/auth/me", s.authenticated(s.meHandler))

	mux.Handle("GET /api/usuarios", s.require(access.Users, access.Read, s.listUsersHandler))
	mux.Handle("PATCH /api/usuarios/{id}/rol", s.require(access.Users, access.Write, s.setUserRoleHandler))
	mux.Handle("PATCH /api/usuarios/{id}/estado", s.require(access.Users, access.Write, s.setUserActiveHandler))
	mux.Handle("DELETE /api/usuarios/{id}", s.require(access.Users, access.Delete, s.deleteUserHandler))

	mux.Handle("GET /api/clientes", s.authenticated(s.listCustomersHandler))
	mux.Handle("GET /api/clientes/{telefono}", s.require(access.Customers, access.Read, s.getCustomerHandler))
	mux.Handle("DELETE /api/clientes/{telefono}", s.require(access.Customers, access.Delete, s.deleteCustomerHandler))

	mux.Handle("GET /api/pedidos", s.authenticated(s.listOrdersHandler))
	mux.Handle("GET /api/pedidos/{id}", s.require(access.Orders, access.Read, s.getOrderHandler))
	mux.Handle("PATCH /api/pedidos/{id}/estado", s.require(access.Orders, access.Write, s.setOrderStateHandler))

	mux.Handle("GET /api/conversaciones", s.authenticated(s.listConversationsHandler))
	mux.Handle("GET /api/conversaciones/{telefono}", s.require(access.Conversations, access.Read, s.getConversationHandler))

	mux.Handle("GET /api/stats", s.require(access.Stats, access.Read, s.statsHandler))

	mux.Handle("GET /api/eventos", s.require(access.Broadcasts, access.Read, s.listBroadcastsHandler))
	mux.Handle("GET /api/eventos/{id}", s.require(access.Broadcasts, access.Read, s.getBroadcastHandler))
	mux.Handle("POST /api/eventos", s.require(access.Broadcasts, access.Write, s.createBroadcastHandler))

	mux.HandleFunc("GET /health", healthHandler)

	return chain(mux, recoverMiddleware, loggingMiddleware, securityHeadersMiddleware, s.corsMiddleware)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "ok"}))
}

// phonesFor lists the phones of customers assigned to r.
func (s *Server) phonesFor(r *http.Request) func(models.Responsable) ([]string, error) {
	return func(resp models.Responsable) ([]string, error) {
		customers, err := s.st.ListCustomers(r.Context(), models.CustomerFilter{Responsable: resp})
		if err != nil {
			return nil, err
		}
		phones := make([]string, 0, len(customers))
		for _, c := range customers {
			phones = append(phones, c.Phone)
		}
		return phones, nil
	}
}

// scope resolves the caller's visibility for obj.
func (s *Server) scope(r *http.Request, obj string) (access.Scope, error) {
	return s.access.ScopeFor(currentUser(r), obj, s.phonesFor(r))
}
