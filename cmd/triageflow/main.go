package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/healthbridge/triageflow/internal/api"
	"github.com/healthbridge/triageflow/internal/assess"
	"github.com/healthbridge/triageflow/internal/messaging"
	"github.com/healthbridge/triageflow/internal/pipeline"
	"github.com/healthbridge/triageflow/internal/providers"
	"github.com/healthbridge/triageflow/internal/store"
	"github.com/healthbridge/triageflow/internal/triage"
	"github.com/healthbridge/triageflow/internal/twiliowhatsapp"
	"github.com/healthbridge/triageflow/internal/util"
	"github.com/healthbridge/triageflow/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for TriageFlow state data
	DefaultStateDir = "/var/lib/triageflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "triageflow.db"
	// DefaultAPIAddr is the default API listen address
	DefaultAPIAddr = ":8080"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, dedup, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}()

	engine := triage.NewEngine(buildAssessor(flags), providers.NewStaticDirectory())
	p := pipeline.New(st, dedup, engine)

	messenger, err := buildMessenger(ctx, flags, p)
	if err != nil {
		slog.Error("Failed to initialize messaging channel", "error", err)
		os.Exit(1)
	}
	if messenger != nil {
		defer func() {
			if err := messenger.Stop(); err != nil {
				slog.Error("Failed to stop messaging channel", "error", err)
			}
		}()
	}

	server := api.NewServer(api.Config{Addr: *flags.apiAddr, VerifyToken: *flags.verifyToken}, p, st, messenger)

	slog.Info("Bootstrapping TriageFlow", "api_addr", *flags.apiAddr, "channel", *flags.channel)
	if err := server.Run(ctx); err != nil {
		slog.Error("TriageFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("TriageFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	VerifyToken string
	Channel     string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	openaiKey   *string
	apiAddr     *string
	verifyToken *string
	channel     *string
}

// initializeLogger sets up structured logging. TRIAGEFLOW_DEBUG=true lowers the
// level to debug.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("TRIAGEFLOW_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("TRIAGEFLOW_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		VerifyToken: os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		Channel:     os.Getenv("MESSAGING_CHANNEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No TRIAGEFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"TRIAGEFLOW_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"WEBHOOK_VERIFY_TOKEN_SET", config.VerifyToken != "",
		"MESSAGING_CHANNEL", config.Channel)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:    flag.String("qr-output", "", "path to write login QR code"),
		numeric:     flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for TriageFlow data (overrides $TRIAGEFLOW_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for GenAI assessments (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		verifyToken: flag.String("verify-token", config.VerifyToken, "webhook verification token (overrides $WEBHOOK_VERIFY_TOKEN)"),
		channel:     flag.String("channel", config.Channel, "messaging channel: whatsapp, twilio, or none (overrides $MESSAGING_CHANNEL)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"channel", *flags.channel)

	// Follow a moved state directory when the DSN was only defaulted from it.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	return os.MkdirAll(stateDir, 0755)
}

// buildStore initializes the session store from the DSN. The same store backs
// both session state and inbound deduplication.
func buildStore(flags Flags) (store.Store, store.DedupRepo, error) {
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		mem := store.NewInMemoryStore()
		return mem, mem, nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		st, err := store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
	if err != nil {
		return nil, nil, err
	}
	return st, st, nil
}

// buildAssessor prefers the GenAI assessor when an API key is configured and
// falls back to the deterministic rule-based one.
func buildAssessor(flags Flags) assess.Assessor {
	if *flags.openaiKey != "" {
		os.Setenv("OPENAI_API_KEY", *flags.openaiKey)
		assessor, err := assess.NewGenAIAssessor()
		if err == nil {
			slog.Info("Using GenAI assessor")
			return assessor
		}
		slog.Warn("GenAI assessor unavailable, falling back to rules", "error", err)
	}
	slog.Info("Using rule-based assessor")
	return assess.NewRuleAssessor()
}

// buildMessenger constructs the outbound messaging channel. A nil return with
// nil error means replies are computed but not delivered (webhook-only mode).
func buildMessenger(ctx context.Context, flags Flags, p *pipeline.Pipeline) (messaging.Service, error) {
	switch *flags.channel {
	case "whatsapp":
		var waOpts []whatsapp.Option
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		waOpts = append(waOpts, whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		svc := messaging.NewWhatsAppService(client, p)
		if err := svc.Start(ctx); err != nil {
			return nil, err
		}
		return svc, nil
	case "twilio":
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, err
		}
		svc := messaging.NewTwilioService(client)
		if err := svc.Start(ctx); err != nil {
			return nil, err
		}
		return svc, nil
	case "", "none":
		slog.Info("No messaging channel configured, replies will not be delivered")
		return nil, nil
	default:
		slog.Warn("Unknown messaging channel, replies will not be delivered", "channel", *flags.channel)
		return nil, nil
	}
}
