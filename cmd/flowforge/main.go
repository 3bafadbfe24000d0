package main

//	@title						FlowForge API
//	@version					0.1.0
//	@description				AI-assisted diagram generation API: streaming chat relay, quotas, usage and diagram storage.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/flowforge-ai/flowforge/api/swagger"
	"github.com/flowforge-ai/flowforge/internal/auth"
	"github.com/flowforge-ai/flowforge/internal/chat"
	"github.com/flowforge-ai/flowforge/internal/config"
	"github.com/flowforge-ai/flowforge/internal/diagram"
	"github.com/flowforge-ai/flowforge/internal/event"
	"github.com/flowforge-ai/flowforge/internal/llm/openai"
	"github.com/flowforge-ai/flowforge/internal/quota"
	"github.com/flowforge-ai/flowforge/internal/server"
	"github.com/flowforge-ai/flowforge/internal/store"
	"github.com/flowforge-ai/flowforge/internal/usage"
	"github.com/flowforge-ai/flowforge/internal/version"
	"github.com/flowforge-ai/flowforge/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Short())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	v, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("FlowForge server starting", zap.String("version", version.Short()))

	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	// Open database.
	dsn := v.GetString("database.dsn")
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("failed to create data directory", zap.Error(err))
		}
	}
	db, err := store.New(dsn)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.CheckVersion(ctx, version.Version); err != nil {
		logger.Fatal("schema version check failed", zap.Error(err))
	}
	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("dsn", dsn),
	)

	bus := event.NewBus(logger.Named("event"))

	// Auth.
	authStore, err := auth.NewUserStore(ctx, db)
	if err != nil {
		logger.Fatal("failed to initialize auth store", zap.Error(err))
	}

	jwtSecret := v.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		// Generate an ephemeral secret -- tokens won't survive restarts.
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			logger.Fatal("failed to generate JWT secret", zap.Error(err))
		}
		jwtSecret = hex.EncodeToString(b)
		logger.Info("using auto-generated JWT secret (set auth.jwt_secret in config to persist sessions across restarts)",
			zap.String("component", "auth"),
		)
	}

	tokens := auth.NewTokenService([]byte(jwtSecret),
		v.GetDuration("auth.access_token_ttl"),
		v.GetDuration("auth.refresh_token_ttl"),
	)
	authService := auth.NewService(authStore, tokens, logger.Named("auth"))
	authHandler := auth.NewHandler(authService, logger.Named("auth"))
	logger.Info("auth service initialized", zap.String("component", "auth"))

	// Usage ledger and quota gate.
	usageStore, err := usage.NewStore(ctx, db)
	if err != nil {
		logger.Fatal("failed to initialize usage store", zap.Error(err))
	}

	quotaCfg := quota.DefaultConfig()
	if err := v.UnmarshalKey("quota", &quotaCfg); err != nil {
		logger.Fatal("invalid quota configuration", zap.Error(err))
	}
	gate := quota.NewGate(usageStore, quotaCfg, logger.Named("quota"))
	logger.Info("quota gate initialized",
		zap.String("component", "quota"),
		zap.Int("registered_daily", quotaCfg.RegisteredDaily),
		zap.Int("guest_monthly", quotaCfg.GuestMonthly),
	)

	usageHandler := usage.NewHandler(usageStore, gate.UserLimits, logger.Named("usage"))

	// LLM provider.
	openaiCfg := openai.DefaultConfig()
	if err := v.UnmarshalKey("llm.openai", &openaiCfg); err != nil {
		logger.Fatal("invalid provider configuration", zap.Error(err))
	}
	apiKey := v.GetString("llm.openai.api_key")
	provider := openai.New(openaiCfg, apiKey, logger.Named("openai"))
	if apiKey == "" {
		logger.Warn("no OpenAI API key configured, chat routes will answer 503",
			zap.String("component", "openai"),
		)
	}

	// Chat relay.
	chatCfg := chat.DefaultConfig()
	if err := v.UnmarshalKey("chat", &chatCfg); err != nil {
		logger.Fatal("invalid chat configuration", zap.Error(err))
	}
	chatHandler := chat.NewHandler(provider, gate, usageStore, bus, chatCfg, logger.Named("chat"))

	// Diagram storage.
	diagramStore, err := diagram.NewStore(ctx, db)
	if err != nil {
		logger.Fatal("failed to initialize diagram store", zap.Error(err))
	}
	diagramHandler := diagram.NewHandler(diagramStore, bus, logger.Named("diagram"))

	// WebSocket push.
	wsHandler := ws.NewHandler(tokens, bus, logger.Named("ws"))

	// HTTP server.
	var srvCfg server.Config
	if err := v.UnmarshalKey("server", &srvCfg); err != nil {
		logger.Fatal("invalid server configuration", zap.Error(err))
	}
	devMode := v.GetBool("server.dev_mode")
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.DB().PingContext(ctx)
	})
	srv := server.New(srvCfg.Addr(), logger.Named("server"), readyCheck, authHandler, devMode,
		chatHandler, usageHandler, diagramHandler, wsHandler,
	)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("FlowForge server ready", zap.String("addr", srvCfg.Addr()))

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("FlowForge server stopped")
}
