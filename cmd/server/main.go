// MedEndorse - clinical case assistant server
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/ashureev/medendorse/internal/agent"
	"github.com/ashureev/medendorse/internal/api"
	"github.com/ashureev/medendorse/internal/config"
	"github.com/ashureev/medendorse/internal/consult"
	"github.com/ashureev/medendorse/internal/dictation"
	"github.com/ashureev/medendorse/internal/health"
	"github.com/ashureev/medendorse/internal/mcp"
	"github.com/ashureev/medendorse/internal/middleware"
	"github.com/ashureev/medendorse/internal/store"
	"github.com/ashureev/medendorse/web"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := newApp(logger).Run(os.Args); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func newApp(logger *slog.Logger) *cli.App {
	app := &cli.App{
		Name:    "medendorse",
		Usage:   "Clinical case assistant backed by Gemini",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file loaded before reading the environment"},
			&cli.StringFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP port (overrides PORT)"},
		},
		Before: func(c *cli.Context) error {
			if err := godotenv.Load(c.String("env-file")); err != nil {
				slog.Info("No .env file found, using environment variables", "path", c.String("env-file"))
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return serve(cfg, logger)
		},
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Print the effective configuration and exit",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					enc := json.NewEncoder(c.App.Writer)
					enc.SetIndent("", "  ")
					return enc.Encode(redacted(cfg))
				},
			},
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if port := c.String("port"); port != "" {
		if err := os.Setenv("PORT", port); err != nil {
			return nil, fmt.Errorf("set PORT: %w", err)
		}
	}
	return config.Load()
}

// redacted returns a copy of cfg safe to print.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	if out.Model.APIKey != "" {
		out.Model.APIKey = "***"
	}
	return out
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Model adapter, wrapped with timeouts and the conversation log.
	gemini, err := agent.NewGeminiClient(ctx, agent.GeminiConfig{
		APIKey:         cfg.Model.APIKey,
		ImageModel:     cfg.Model.ImageModel,
		DiagnosisModel: cfg.Model.DiagnosisModel,
		PlanModel:      cfg.Model.PlanModel,
		ChatModel:      cfg.Model.ChatModel,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize model client: %w", err)
	}
	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		gemini.Close()
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	processor, err := agent.NewServiceWithProcessor(gemini, cfg.Model.Timeout, conversationLogger)
	if err != nil {
		gemini.Close()
		return fmt.Errorf("initialize agent service: %w", err)
	}
	defer processor.Close()

	svc := consult.NewService(processor, consult.Options{
		MaxImageBytes: cfg.MaxImageBytes,
		SpeechLang:    cfg.SpeechLang,
	})

	repo := store.NewMemory()
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	sm := dictation.NewSessionManager()
	repo.OnDelete(func(caseID string) {
		sm.CloseCase(caseID)
		processor.CloseCase(caseID)
	})
	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Close()

	// Initialize handlers.
	caseHandler := api.NewCaseHandler(repo, svc, cfg, limiter)
	healthHandler := api.NewHealthHandler(repo, sm)
	wsHandler := dictation.NewWebSocketHandler(repo, svc, sm, cfg.FrontendURL, cfg.IsDevelopment())

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	healthHandler.RegisterHealth(r)
	r.Route("/api", caseHandler.RegisterRoutes)
	r.Get("/ws/cases/{id}/dictation", wsHandler.ServeHTTP)
	if cfg.MCPEnabled {
		r.Handle("/mcp", mcp.NewHTTPHandler(mcp.NewServer(repo, svc, Version)))
		slog.Info("MCP endpoint enabled", "path", "/mcp", "tools", mcp.ToolNames())
	}
	r.Handle("/*", web.SPAHandler())

	// SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	store.StartTTLWorker(ctx, repo, cfg.CaseTTL, store.DefaultSweepInterval, func(caseID string) {
		slog.Info("Case expired", "case_id", caseID)
	})

	var healthSrv *health.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("listen on gRPC port: %w", err)
		}
		healthSrv = health.NewServer(repo)
		healthSrv.Start(ctx, health.DefaultProbeInterval)
		go func() {
			if err := healthSrv.Serve(lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if healthSrv != nil {
		healthSrv.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	svc.Wait()

	slog.Info("Server stopped successfully")
	return nil
}
