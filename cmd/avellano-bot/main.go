// Command avellano-bot runs the Avellano WhatsApp ordering bot and the
// dashboard API in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/avellano/avellano-bot/internal/api"
	"github.com/avellano/avellano-bot/internal/inactivity"
	"github.com/avellano/avellano-bot/internal/store"
	"github.com/avellano/avellano-bot/internal/twiliowhatsapp"
	"github.com/avellano/avellano-bot/internal/util"
	"github.com/avellano/avellano-bot/internal/whatsapp"
)

// Default configuration constants
const (
	DefaultStateDir           = "/var/lib/avellano"
	DefaultAppDBFileName      = "avellano.db"
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	DefaultBotAddr            = ":3008"
	DefaultAPIAddr            = ":3009"
)

func main() {
	envErr := godotenv.Load()
	initializeLogger(os.Getenv("LOG_LEVEL"))
	if envErr != nil {
		slog.Debug("failed to load .env file", "error", envErr)
	}

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	cfg := buildRunConfig(config, flags)

	if err := validateConfig(config, cfg); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting Avellano bot", "provider", cfg.Provider, "bot_addr", cfg.BotAddr, "api_addr", cfg.APIAddr,
		"state_dir", cfg.StateDir, "db", store.DetectDSNType(cfg.DatabaseDSN), "sessions", cfg.SessionBackend)
	if err := api.Run(ctx, cfg); err != nil {
		slog.Error("Avellano bot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Avellano bot exited successfully")
}

// parseLogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// Config holds environment configuration
type Config struct {
	StateDir      string
	DatabaseDSN   string
	WhatsAppDBDSN string
	BotAddr       string
	APIAddr       string

	JWTSecret        string
	JWTRefreshSecret string

	Provider        string
	MetaToken       string
	MetaNumberID    string
	MetaVerifyToken string
	MetaVersion     string
	TwilioSID       string
	TwilioToken     string
	TwilioFrom      string

	InactivityTimeout        time.Duration
	SessionBackend           string
	SupportSeesOrders        bool
	SupportSeesConversations bool
	CatalogFile              string
	OpenAIKey                string
	FrontendURL              string
	AdminEmail               string
	AdminPassword            string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput  *string
	numeric   *bool
	stateDir  *string
	dbDSN     *string
	waDSN     *string
	botAddr   *string
	apiAddr   *string
	provider  *string
	catalog   *string
	openaiKey *string
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// loadEnvironmentConfig reads configuration from the environment, filling defaults.
func loadEnvironmentConfig() Config {
	config := Config{
		StateDir:         getenvDefault("AVELLANO_STATE_DIR", DefaultStateDir),
		DatabaseDSN:      os.Getenv("DATABASE_DSN"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		BotAddr:          getenvDefault("BOT_ADDR", DefaultBotAddr),
		APIAddr:          getenvDefault("API_ADDR", DefaultAPIAddr),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTRefreshSecret: os.Getenv("JWT_REFRESH_SECRET"),
		Provider:         strings.ToLower(getenvDefault("MESSAGING_PROVIDER", api.ProviderMeta)),
		MetaToken:        os.Getenv("JWT_TOKEN"),
		MetaNumberID:     os.Getenv("NUMBER_ID"),
		MetaVerifyToken:  os.Getenv("VERIFY_TOKEN"),
		MetaVersion:      os.Getenv("PROVIDER_VERSION"),
		TwilioSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:       os.Getenv("TWILIO_FROM_NUMBER"),

		InactivityTimeout:        util.ParseDurationEnv("INACTIVITY_TIMEOUT", inactivity.DefaultTimeout),
		SessionBackend:           strings.ToLower(getenvDefault("SESSION_BACKEND", api.SessionPersisted)),
		SupportSeesOrders:        util.ParseBoolEnv("SUPPORT_SEES_ORDERS", true),
		SupportSeesConversations: util.ParseBoolEnv("SUPPORT_SEES_CONVERSATIONS", false),
		CatalogFile:              os.Getenv("CATALOG_FILE"),
		OpenAIKey:                os.Getenv("OPENAI_API_KEY"),
		FrontendURL:              os.Getenv("FRONTEND_URL"),
		AdminEmail:               os.Getenv("ADMIN_EMAIL"),
		AdminPassword:            os.Getenv("ADMIN_PASSWORD"),
	}

	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No DATABASE_DSN set, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"AVELLANO_STATE_DIR", config.StateDir,
		"DATABASE_DSN_TYPE", store.DetectDSNType(config.DatabaseDSN),
		"MESSAGING_PROVIDER", config.Provider,
		"JWT_SECRET_SET", config.JWTSecret != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"SESSION_BACKEND", config.SessionBackend,
		"INACTIVITY_TIMEOUT", config.InactivityTimeout)
	return config
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses args with environment defaults.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	flags := Flags{
		qrOutput:  fs.String("qr-output", "", "path to write the WhatsApp login QR code (.png writes an image)"),
		numeric:   fs.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:  fs.String("state-dir", config.StateDir, "state directory (overrides $AVELLANO_STATE_DIR)"),
		dbDSN:     fs.String("db-dsn", config.DatabaseDSN, "application database DSN (overrides $DATABASE_DSN)"),
		waDSN:     fs.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)"),
		botAddr:   fs.String("bot-addr", config.BotAddr, "bot webhook address (overrides $BOT_ADDR)"),
		apiAddr:   fs.String("api-addr", config.APIAddr, "dashboard API address (overrides $API_ADDR)"),
		provider:  fs.String("provider", config.Provider, "messaging provider: meta, whatsmeow or twilio (overrides $MESSAGING_PROVIDER)"),
		catalog:   fs.String("catalog", config.CatalogFile, "product catalog JSON file (overrides $CATALOG_FILE)"),
		openaiKey: fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
	}
	if err := fs.Parse(args); err != nil {
		slog.Warn("failed to parse flags", "error", err)
	}

	// Follow a moved state directory unless the DSNs were set explicitly.
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
		}
		if *flags.waDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.waDSN = defaultWhatsAppDSN(*flags.stateDir)
		}
		slog.Debug("Updated DSNs based on state directory", "state_dir", *flags.stateDir)
	}
	return flags
}

// buildRunConfig merges environment and flags into the api.Run configuration.
func buildRunConfig(config Config, flags Flags) api.Config {
	cfg := api.Config{
		StateDir:         *flags.stateDir,
		DatabaseDSN:      *flags.dbDSN,
		BotAddr:          *flags.botAddr,
		APIAddr:          *flags.apiAddr,
		JWTSecret:        config.JWTSecret,
		JWTRefreshSecret: config.JWTRefreshSecret,
		Provider:         strings.ToLower(*flags.provider),
		Meta: api.MetaConfig{
			AccessToken: config.MetaToken,
			NumberID:    config.MetaNumberID,
			VerifyToken: config.MetaVerifyToken,
			APIVersion:  config.MetaVersion,
		},
		InactivityTimeout:        config.InactivityTimeout,
		SessionBackend:           config.SessionBackend,
		SupportSeesOrders:        config.SupportSeesOrders,
		SupportSeesConversations: config.SupportSeesConversations,
		CatalogFile:              *flags.catalog,
		OpenAIKey:                *flags.openaiKey,
		FrontendURL:              config.FrontendURL,
		AdminEmail:               config.AdminEmail,
		AdminPassword:            config.AdminPassword,
	}

	cfg.WhatsApp = append(cfg.WhatsApp, whatsapp.WithDBDSN(*flags.waDSN))
	if *flags.qrOutput != "" {
		cfg.WhatsApp = append(cfg.WhatsApp, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		cfg.WhatsApp = append(cfg.WhatsApp, whatsapp.WithNumericCode())
	}

	if config.TwilioSID != "" {
		cfg.Twilio = append(cfg.Twilio, twiliowhatsapp.WithAccountSID(config.TwilioSID))
	}
	if config.TwilioToken != "" {
		cfg.Twilio = append(cfg.Twilio, twiliowhatsapp.WithAuthToken(config.TwilioToken))
	}
	if config.TwilioFrom != "" {
		cfg.Twilio = append(cfg.Twilio, twiliowhatsapp.WithFromWhats(config.TwilioFrom))
	}
	return cfg
}

// validateConfig rejects configurations the bot cannot start with.
func validateConfig(config Config, cfg api.Config) error {
	var errs []error
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if cfg.JWTRefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET is required"))
	}
	if err := api.ValidateProvider(cfg); err != nil {
		errs = append(errs, err)
	}
	if cfg.Provider == api.ProviderTwilio && (config.TwilioSID == "" || config.TwilioToken == "" || config.TwilioFrom == "") {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required for provider twilio"))
	}
	switch cfg.SessionBackend {
	case api.SessionMemory, api.SessionPersisted:
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend))
	}
	return errors.Join(errs...)
}
