package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avellano/avellano-bot/internal/access"
	"github.com/avellano/avellano-bot/internal/auth"
	"github.com/avellano/avellano-bot/internal/broadcast"
	"github.com/avellano/avellano-bot/internal/flow"
	"github.com/avellano/avellano-bot/internal/genai"
	"github.com/avellano/avellano-bot/internal/inactivity"
	"github.com/avellano/avellano-bot/internal/lockfile"
	"github.com/avellano/avellano-bot/internal/messaging"
	"github.com/avellano/avellano-bot/internal/models"
	"github.com/avellano/avellano-bot/internal/orders"
	"github.com/avellano/avellano-bot/internal/scheduler"
	"github.com/avellano/avellano-bot/internal/session"
	"github.com/avellano/avellano-bot/internal/store"
	"github.com/avellano/avellano-bot/internal/twiliowhatsapp"
	"github.com/avellano/avellano-bot/internal/whatsapp"
)

// Messaging providers.
const (
	ProviderMeta      = "meta"
	ProviderWhatsmeow = "whatsmeow"
	ProviderTwilio    = "twilio"
)

// Session backends.
const (
	SessionMemory    = "memory"
	SessionPersisted = "persisted"
)

const (
	jobPollInterval    = 5 * time.Second
	outboxPollInterval = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
	dedupRetention     = 7 * 24 * time.Hour
	dedupPruneSchedule = "30 3 * * *"
)

// MetaConfig holds WhatsApp Cloud API credentials.
type MetaConfig struct {
	AccessToken string
	NumberID    string
	VerifyToken string
	APIVersion  string
}

// Config is everything Run needs to start the bot and the dashboard.
type Config struct {
	StateDir    string
	DatabaseDSN string
	BotAddr     string
	APIAddr     string

	JWTSecret        string
	JWTRefreshSecret string

	Provider string
	Meta     MetaConfig
	WhatsApp []whatsapp.Option
	Twilio   []twiliowhatsapp.Option

	InactivityTimeout        time.Duration
	SessionBackend           string
	SupportSeesOrders        bool
	SupportSeesConversations bool
	CatalogFile              string
	OpenAIKey                string
	FrontendURL              string

	AdminEmail    string
	AdminPassword string
}

// provider is a started messaging transport plus its optional webhook.
type provider struct {
	svc     messaging.Service
	webhook http.HandlerFunc
	close   func()
}

func newProvider(cfg Config) (*provider, error) {
	switch cfg.Provider {
	case "", ProviderMeta:
		opts := []messaging.CloudOption{}
		if cfg.Meta.APIVersion != "" {
			opts = append(opts, messaging.WithAPIVersion(cfg.Meta.APIVersion))
		}
		svc, err := messaging.NewCloudService(cfg.Meta.AccessToken, cfg.Meta.NumberID, cfg.Meta.VerifyToken, opts...)
		if err != nil {
			return nil, err
		}
		return &provider{svc: svc, webhook: svc.WebhookHandler, close: func() {}}, nil
	case ProviderWhatsmeow:
		client, err := whatsapp.NewClient(cfg.WhatsApp...)
		if err != nil {
			return nil, fmt.Errorf("failed to create whatsapp client: %w", err)
		}
		svc := messaging.NewWhatsAppService(client)
		return &provider{svc: svc, close: func() { client.Disconnect() }}, nil
	case ProviderTwilio:
		client, err := twiliowhatsapp.NewClient(cfg.Twilio...)
		if err != nil {
			return nil, fmt.Errorf("failed to create twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return &provider{svc: svc, webhook: svc.WebhookHandler, close: func() {}}, nil
	default:
		return nil, fmt.Errorf("unknown messaging provider %q", cfg.Provider)
	}
}

// BotHandler serves the bot's health check and, when the provider receives
// messages over HTTP, its webhook.
func BotHandler(webhook http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	if webhook != nil {
		mux.HandleFunc("/webhook", webhook)
	}
	return chain(mux, recoverMiddleware, loggingMiddleware)
}

// BootstrapAdmin creates the first administrator when the user table is
// empty and credentials were configured.
func BootstrapAdmin(ctx context.Context, users store.UserRepo, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	n, err := users.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         "Administrador",
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := users.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	slog.Info("BootstrapAdmin: administrator created", "email", u.Email)
	return nil
}

// Run starts the bot and the dashboard and blocks until ctx is canceled.
func Run(ctx context.Context, cfg Config) error {
	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("Run: failed to release state lock", "error", err)
		}
	}()

	st, err := store.Open(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTRefreshSecret)
	if err != nil {
		return err
	}
	enforcer, err := access.NewEnforcer(access.WithSupportVisibility(cfg.SupportSeesOrders, cfg.SupportSeesConversations))
	if err != nil {
		return err
	}
	if err := BootstrapAdmin(ctx, st, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}

	prov, err := newProvider(cfg)
	if err != nil {
		return err
	}
	defer prov.close()
	if err := prov.svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer prov.svc.Stop()
	slog.Info("Run: messaging provider started", "provider", cfg.Provider)

	var sessions session.Store
	switch cfg.SessionBackend {
	case SessionMemory:
		sessions = session.NewMemory()
	default:
		sessions = session.NewPersisted(st)
	}

	timers := inactivity.NewManager(inactivity.WithTimeout(cfg.InactivityTimeout))
	defer timers.Stop()

	catalog := flow.DefaultCatalog()
	if cfg.CatalogFile != "" {
		if catalog, err = flow.LoadCatalog(cfg.CatalogFile); err != nil {
			return err
		}
	}

	orderSvc := orders.NewService(st, prov.svc, orders.WithOutbox(st))

	deps := flow.Deps{
		Sessions:      sessions,
		Customers:     st,
		Conversations: st,
		Sender:        prov.svc,
		Orders:        orderSvc,
		Timers:        timers,
		Catalog:       catalog,
	}
	if cfg.OpenAIKey != "" {
		client, err := genai.NewClient(genai.WithAPIKey(cfg.OpenAIKey))
		if err != nil {
			slog.Warn("Run: recipe suggestions disabled", "error", err)
		} else {
			deps.Recipes = client
		}
	}
	router := flow.NewRouter(deps)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	broadcasts := broadcast.NewService(st, st, prov.svc, broadcast.WithJobs(st), broadcast.WithScheduler(sched))
	if err := broadcasts.RestoreRecurring(ctx); err != nil {
		slog.Warn("Run: failed to restore recurring broadcasts", "error", err)
	}
	if _, err := sched.AddJob("dedup-prune", dedupPruneSchedule, func() {
		n, err := st.PruneInbound(time.Now().Add(-dedupRetention))
		if err != nil {
			slog.Warn("Run: dedup prune failed", "error", err)
			return
		}
		slog.Debug("Run: dedup prune finished", "removed", n)
	}); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := store.NewJobRunner(st, jobPollInterval)
	jobs.RegisterHandler(broadcast.JobKind, broadcasts.HandleJob)
	if err := jobs.RecoverStaleJobs(); err != nil {
		slog.Warn("Run: failed to recover stale jobs", "error", err)
	}
	go jobs.Run(runCtx)

	outbox := store.NewOutboxSender(st, orders.DeliverOutbox(prov.svc), outboxPollInterval)
	if err := outbox.RecoverStaleMessages(); err != nil {
		slog.Warn("Run: failed to recover stale outbox messages", "error", err)
	}
	go outbox.Run(runCtx)

	inbox := messaging.NewInbox(prov.svc, router, messaging.WithDedup(st))
	inbox.Start(runCtx)

	dashboard := NewServer(Deps{
		Store:      st,
		Orders:     orderSvc,
		Broadcasts: broadcasts,
		Tokens:     tokens,
		Access:     enforcer,
		Sessions:   sessions,
	}, WithFrontendURL(cfg.FrontendURL))

	servers := []*http.Server{
		{Addr: cfg.BotAddr, Handler: BotHandler(prov.webhook)},
		{Addr: cfg.APIAddr, Handler: dashboard.Handler()},
	}
	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			slog.Info("Run: HTTP server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Run: shutting down")
	case runErr = <-errCh:
		slog.Error("Run: HTTP server failed", "error", runErr)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Run: server shutdown failed", "addr", srv.Addr, "error", err)
		}
	}
	cancel()
	inbox.Wait()
	return runErr
}

// ValidateProvider reports missing credentials for the selected provider.
func ValidateProvider(cfg Config) error {
	var missing []string
	switch cfg.Provider {
	case "", ProviderMeta:
		if cfg.Meta.AccessToken == "" {
			missing = append(missing, "JWT_TOKEN")
		}
		if cfg.Meta.NumberID == "" {
			missing = append(missing, "NUMBER_ID")
		}
		if cfg.Meta.VerifyToken == "" {
			missing = append(missing, "VERIFY_TOKEN")
		}
	case ProviderWhatsmeow, ProviderTwilio:
	default:
		return fmt.Errorf("unknown messaging provider %q", cfg.Provider)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s for provider %s", strings.Join(missing, ", "), cfg.Provider)
	}
	return nil
}
