package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"agentchain/backend/internal/agentchat"
	"agentchain/backend/internal/api"
	"agentchain/backend/internal/auth"
	"agentchain/backend/internal/config"
	"agentchain/backend/internal/logging"
	"agentchain/backend/internal/mcp"
	"agentchain/backend/internal/repository"
	"agentchain/backend/internal/services"
	"agentchain/backend/internal/tls"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "agentchain",
		Short:         "Agent workflow service",
		Long:          "Agentchain stores ordered chains of published agents and runs them against the agent chat service.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./config.yaml or ./config/config.yaml)")

	rootCmd.AddCommand(newServeCommand(&configPath))
	rootCmd.AddCommand(newMigrateCommand(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := logging.NewLogger(cfg.Log)
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"db_driver", cfg.DB.Driver,
		"agent_chat_url", agentchat.ChatURL(cfg.AgentChat.BaseURL, cfg.AgentChat.ChatPath),
		"issuer", cfg.Auth.Issuer,
		"swagger_client_id", cfg.Auth.SwaggerClientID,
	)

	repo, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	defer repo.Close()
	logger.Info("Database connected")

	if cfg.DB.AutoMigrate {
		if err := migrateUp(repo); err != nil {
			return err
		}
		logger.Info("Database schema up to date")
	}

	chatClient := agentchat.NewClient(agentchat.Config{
		BaseURL:        cfg.AgentChat.BaseURL,
		ChatPath:       cfg.AgentChat.ChatPath,
		ConnectTimeout: cfg.AgentChat.ConnectTimeout,
		ReadTimeout:    cfg.AgentChat.ReadTimeout,
	}, logger)
	workflowService := services.NewWorkflowService(repo, repo, logger)
	executor := services.NewExecutor(repo, repo, chatClient, logger)
	logger.Info("Service layer initialized")

	authz, err := auth.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	httpMetrics := api.NewHTTPMetrics("agentchain", registry)

	e := api.NewEcho(logger)
	e.Use(otelecho.Middleware("agentchain"))
	e.Use(httpMetrics.Middleware())

	e.GET("/healthz", api.NewHandler(repo, logger).HandleHealth)
	e.GET("/metrics", echo.WrapHandler(httpMetrics.Handler()))

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	api.RegisterHandlers(apiGroup, api.NewServer(workflowService, executor))
	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(workflowService, executor, logger)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(authz.RequireAuth(mcpHandlers)))
	logger.Info("MCP protocol handlers mounted")

	e.GET("/openapi.yaml", echo.WrapHandler(api.SpecHandler(cfg.Auth.Issuer)))
	e.GET("/docs", echo.WrapHandler(api.SwaggerHandler(cfg.Auth.SwaggerClientID)))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(api.OAuth2RedirectHandler()))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.TLS.Enable {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return errors.New("TLS enabled but cert/key file not provided")
		}
		created, err := tls.EnsureCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
		if err != nil {
			return fmt.Errorf("failed to prepare TLS certificate: %w", err)
		}
		if created {
			logger.Warn("Generated self-signed certificate", "cert_file", cfg.TLS.CertFile, "hostnames", cfg.TLS.Hostnames)
		}
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
		if err := server.Close(); err != nil {
			logger.Error("Server close error", "error", err)
		}
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

func migrateUp(repo repository.Repository) error {
	m, err := repository.NewMigrator(repo)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}
