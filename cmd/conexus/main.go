package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/ferg-cod3s/conexus/internal/cache"
	"github.com/ferg-cod3s/conexus/internal/config"
	"github.com/ferg-cod3s/conexus/internal/embedding"
	"github.com/ferg-cod3s/conexus/internal/indexer"
	"github.com/ferg-cod3s/conexus/internal/mcp"
	"github.com/ferg-cod3s/conexus/internal/middleware"
	"github.com/ferg-cod3s/conexus/internal/observability"
	"github.com/ferg-cod3s/conexus/internal/protocol"
	"github.com/ferg-cod3s/conexus/internal/remotes"
	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/ferg-cod3s/conexus/internal/security/auth"
	"github.com/ferg-cod3s/conexus/internal/security/ratelimit"
	"github.com/ferg-cod3s/conexus/internal/statestore"
	"github.com/ferg-cod3s/conexus/internal/syncpipeline"
	"github.com/ferg-cod3s/conexus/internal/tls"
	"github.com/ferg-cod3s/conexus/internal/vectorstore"
	"github.com/ferg-cod3s/conexus/internal/vectorstore/sqlite"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

const Version = "0.1.3-alpha"

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// In stdio mode (MCP), logs must go to stderr to avoid interfering with JSON-RPC.
	logOutput := os.Stdout
	if os.Getenv("CONEXUS_PORT") == "" || cfg.Server.Port == 0 {
		logOutput = os.Stderr
	}
	logger := observability.NewLogger(observability.LoggerConfig{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Output:        logOutput,
		AddSource:     true,
		SentryEnabled: cfg.Observability.Sentry.Enabled,
	})

	logger.Info("Conexus sync engine starting",
		"version", Version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"database", cfg.Database.Path,
		"index_dir", cfg.Sync.IndexDir,
		"metrics_enabled", cfg.Observability.Metrics.Enabled,
		"tracing_enabled", cfg.Observability.Tracing.Enabled,
	)

	var metrics *observability.MetricsCollector
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetricsCollector("conexus")
		logger.Info("Metrics collection enabled", "port", cfg.Observability.Metrics.Port, "path", cfg.Observability.Metrics.Path)
		go startMetricsServer(ctx, cfg.Observability.Metrics, logger)
	} else {
		logger.Info("Metrics collection disabled")
	}

	var tracerProvider *observability.TracerProvider
	if cfg.Observability.Tracing.Enabled {
		tracerProvider, err = observability.NewTracerProvider(observability.TracerConfig{
			ServiceName:    "conexus",
			ServiceVersion: Version,
			Environment:    "development",
			OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
			SamplingRate:   cfg.Observability.Tracing.SampleRate,
			Enabled:        true,
		})
		if err != nil {
			logger.Error("Failed to initialize tracing provider", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()
		logger.Info("Tracing enabled", "endpoint", cfg.Observability.Tracing.Endpoint, "sample_rate", cfg.Observability.Tracing.SampleRate)
	} else {
		logger.Info("Tracing disabled")
	}

	if cfg.Observability.Sentry.Enabled {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Observability.Sentry.DSN,
			Environment:      cfg.Observability.Sentry.Environment,
			Release:          cfg.Observability.Sentry.Release,
			TracesSampleRate: cfg.Observability.Sentry.SampleRate,
			EnableTracing:    true,
			EnableLogs:       true,
		})
		if err != nil {
			logger.Error("Failed to initialize Sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
		logger.Info("Sentry enabled", "environment", cfg.Observability.Sentry.Environment, "sample_rate", cfg.Observability.Sentry.SampleRate)
	} else {
		logger.Info("Sentry disabled")
	}

	vectorStore, err := sqlite.NewStore(cfg.Database.Path)
	if err != nil {
		logger.Error("Failed to initialize vector store", "error", err)
		os.Exit(1)
	}
	defer vectorStore.Close()

	provider, err := embedding.Get(cfg.Embedding.Provider)
	if err != nil {
		logger.Error("Failed to get embedding provider", "provider", cfg.Embedding.Provider, "error", err)
		os.Exit(1)
	}
	providerConfig := make(map[string]interface{})
	for k, v := range cfg.Embedding.Config {
		providerConfig[k] = v
	}
	providerConfig["model"] = cfg.Embedding.Model
	providerConfig["dimensions"] = cfg.Embedding.Dimensions
	embedder, err := provider.Create(providerConfig)
	if err != nil {
		logger.Error("Failed to create embedder", "provider", cfg.Embedding.Provider, "error", err)
		os.Exit(1)
	}
	logger.Info("Embedder initialized", "provider", cfg.Embedding.Provider, "model", embedder.Model(), "dimensions", embedder.Dimensions())

	errorHandler := observability.NewErrorHandler(logger, metrics, cfg.Observability.Sentry.Enabled)

	// Composition root for the sync/indexing core: a repo pool backed
	// by repo_state.json, a remotes registry that knows how to fetch
	// GitHub and local repos, a file cache for incremental syncs, and
	// the pipeline writers that turn synced files into vector+BM25
	// index rows. The queue ties them together and is what every MCP
	// tool and the startup scan drive.
	src := statestore.NewSource(cfg.Sync.IndexDir)

	fileCacheDB, err := sql.Open("sqlite", src.DatabasePath())
	if err != nil {
		logger.Error("Failed to open file cache database", "error", err)
		os.Exit(1)
	}
	fileCacheDB.SetMaxOpenConns(1)
	defer fileCacheDB.Close()

	fileCache, err := cache.NewFileCache(fileCacheDB)
	if err != nil {
		logger.Error("Failed to initialize file cache", "error", err)
		os.Exit(1)
	}

	credStore := remotes.NewStore(src)
	githubBackend := remotes.NewGitHubBackend(credStore)
	registry := remotes.NewRegistry(githubBackend)

	chunkCache := cache.NewChunkCache(vectorStore)
	writers := indexer.NewPipelineWriters(chunkCache, embedder, vectorStore)

	pool, err := statestore.LoadPool(src)
	if err != nil {
		logger.Error("Failed to load repo pool state", "error", err)
		os.Exit(1)
	}

	queue := syncpipeline.NewQueue(cfg.Sync.MaxConcurrentSyncs, writers, registry, src, logger, errorHandler)

	if !cfg.Sync.DisableBackground {
		go func() {
			if err := queue.StartupScan(ctx, pool, fileCache, cfg.Indexer.RootPath, false); err != nil {
				logger.Error("Startup scan failed", "error", err)
				return
			}
			if err := statestore.SavePool(src, pool); err != nil {
				logger.Error("Failed to persist repo pool state after startup scan", "error", err)
			}
		}()
	} else {
		logger.Info("Background sync disabled by configuration")
	}

	if os.Getenv("CONEXUS_PORT") != "" && cfg.Server.Port > 0 {
		runHTTPServer(ctx, cfg, pool, queue, fileCache, src, vectorStore, embedder, logger, metrics, tracerProvider, errorHandler)
	} else {
		logger.Info("Running in stdio mode (MCP over stdin/stdout)")
		mcpServer := mcp.NewServer(os.Stdin, os.Stdout, cfg.Indexer.RootPath, pool, queue, fileCache, src, vectorStore, embedder, logger, metrics, errorHandler)
		if err := mcpServer.Serve(); err != nil {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
		queue.Wait()
		if err := statestore.SavePool(src, pool); err != nil {
			logger.Error("Failed to persist repo pool state on exit", "error", err)
		}
	}
}

// startMetricsServer starts the Prometheus metrics HTTP server on a separate port.
func startMetricsServer(ctx context.Context, cfg config.MetricsConfig, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","component":"metrics"}`)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("Starting metrics server", "addr", addr, "path", cfg.Path)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server failed", "error", err)
	}
}

func runHTTPServer(
	ctx context.Context,
	cfg *config.Config,
	pool *repo.Pool,
	queue *syncpipeline.Queue,
	fileCache *cache.FileCache,
	src statestore.Source,
	vectorStore vectorstore.VectorStore,
	embedder embedding.Embedder,
	logger *observability.Logger,
	metrics *observability.MetricsCollector,
	tracerProvider *observability.TracerProvider,
	errorHandler *observability.ErrorHandler,
) {
	var tlsManager *tls.Manager
	if cfg.TLS.Enabled {
		var err error
		tlsManager, err = tls.NewManager(&cfg.TLS, logger)
		if err != nil {
			logger.Error("Failed to initialize TLS manager", "error", err)
			os.Exit(1)
		}
		if err := tlsManager.ValidateCertificates(); err != nil {
			logger.Error("Certificate validation failed", "error", err)
			os.Exit(1)
		}
		logger.Info("TLS enabled", "auto_cert", cfg.TLS.AutoCert, "min_version", cfg.TLS.MinVersion)
	}

	mux := http.NewServeMux()

	mcpServer := mcp.NewServer(nil, nil, cfg.Indexer.RootPath, pool, queue, fileCache, src, vectorStore, embedder, logger, metrics, errorHandler)

	var jwtManager *auth.JWTManager
	var authMiddleware *middleware.AuthMiddleware
	if cfg.Auth.Enabled {
		var err error
		jwtManager, err = auth.NewJWTManager(cfg.Auth.PrivateKey, cfg.Auth.PublicKey, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenExpiry)
		if err != nil {
			logger.Error("Failed to initialize JWT manager", "error", err)
			os.Exit(1)
		}
		authMiddleware = middleware.NewAuthMiddleware(jwtManager)
		logger.Info("JWT authentication enabled", "issuer", cfg.Auth.Issuer, "audience", cfg.Auth.Audience, "token_expiry_minutes", cfg.Auth.TokenExpiry)
	} else {
		logger.Info("JWT authentication disabled")
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":"%s"}`, Version)
	})

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		requestCtx := r.Context()
		var span trace.Span
		if tracerProvider != nil {
			requestCtx, span = tracerProvider.StartSpan(requestCtx, "mcp.request")
			defer span.End()
		}
		handleJSONRPC(w, r.WithContext(requestCtx), mcpServer, logger, metrics, tracerProvider)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name":"conexus","version":"%s","mcp_endpoint":"/mcp"}`, Version)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	var rateLimitMiddleware *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		rateLimitConfig := ratelimit.Config{
			Enabled: cfg.RateLimit.Enabled,
			Algorithm: func() ratelimit.Algorithm {
				switch cfg.RateLimit.Algorithm {
				case "token_bucket":
					return ratelimit.TokenBucket
				case "sliding_window":
					return ratelimit.SlidingWindow
				default:
					return ratelimit.SlidingWindow
				}
			}(),
			Redis: ratelimit.RedisConfig{
				Enabled:   cfg.RateLimit.Redis.Enabled,
				Addr:      cfg.RateLimit.Redis.Addr,
				Password:  cfg.RateLimit.Redis.Password,
				DB:        cfg.RateLimit.Redis.DB,
				KeyPrefix: cfg.RateLimit.Redis.KeyPrefix,
			},
			Default:         ratelimit.LimitConfig{Requests: cfg.RateLimit.Default.Requests, Window: cfg.RateLimit.Default.Window},
			Health:          ratelimit.LimitConfig{Requests: cfg.RateLimit.Health.Requests, Window: cfg.RateLimit.Health.Window},
			Webhook:         ratelimit.LimitConfig{Requests: cfg.RateLimit.Webhook.Requests, Window: cfg.RateLimit.Webhook.Window},
			Auth:            ratelimit.LimitConfig{Requests: cfg.RateLimit.Auth.Requests, Window: cfg.RateLimit.Auth.Window},
			BurstMultiplier: cfg.RateLimit.BurstMultiplier,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		}

		rateLimiter, err := ratelimit.NewRateLimiter(rateLimitConfig)
		if err != nil {
			logger.Error("Failed to initialize rate limiter", "error", err)
			os.Exit(1)
		}
		rateLimitMiddleware = middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
			RateLimiter:      rateLimiter,
			MetricsCollector: metrics,
			SkipPaths:        cfg.RateLimit.SkipPaths,
			SkipIPs:          cfg.RateLimit.SkipIPs,
			TrustedProxies:   cfg.RateLimit.TrustedProxies,
		}, logger)
		logger.Info("Rate limiting enabled", "algorithm", cfg.RateLimit.Algorithm, "redis_enabled", cfg.RateLimit.Redis.Enabled)
	} else {
		logger.Info("Rate limiting disabled")
	}

	securityMiddleware := middleware.NewSecurityMiddleware(middleware.SecurityConfig{
		CSP: middleware.CSPConfig{
			Enabled: cfg.Security.CSP.Enabled,
			Default: cfg.Security.CSP.Default,
			Script:  cfg.Security.CSP.Script,
			Style:   cfg.Security.CSP.Style,
			Image:   cfg.Security.CSP.Image,
			Font:    cfg.Security.CSP.Font,
			Connect: cfg.Security.CSP.Connect,
			Media:   cfg.Security.CSP.Media,
			Object:  cfg.Security.CSP.Object,
			Frame:   cfg.Security.CSP.Frame,
			Report:  cfg.Security.CSP.Report,
		},
		HSTS: middleware.HSTSConfig{
			Enabled:           cfg.Security.HSTS.Enabled,
			MaxAge:            cfg.Security.HSTS.MaxAge,
			IncludeSubdomains: cfg.Security.HSTS.IncludeSubdomains,
			Preload:           cfg.Security.HSTS.Preload,
		},
		XFrameOptions:       cfg.Security.XFrameOptions,
		XContentTypeOptions: cfg.Security.XContentTypeOptions,
		ReferrerPolicy:      cfg.Security.ReferrerPolicy,
		PermissionsPolicy:   cfg.Security.PermissionsPolicy,
	}, logger)

	corsMiddleware := middleware.NewCORSMiddleware(middleware.CORSConfig{
		Enabled:          cfg.CORS.Enabled,
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}, logger)

	var handler http.Handler = mux
	if rateLimitMiddleware != nil {
		handler = rateLimitMiddleware.Middleware(handler)
	}
	handler = corsMiddleware.Middleware(handler)
	handler = securityMiddleware.Middleware(handler)
	if authMiddleware != nil {
		handler = authMiddleware.Middleware(handler)
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if tlsManager != nil {
		server.TLSConfig = tlsManager.GetTLSConfig()
		logger.Info("HTTPS server configured with TLS")
	}

	if tlsManager != nil {
		httpsPort := cfg.Server.Port
		if httpsPort == 443 {
			httpsPort = 0
		}
		if err := tlsManager.StartHTTPRedirect(ctx, httpsPort); err != nil {
			logger.Error("Failed to start HTTP redirect server", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		scheme := "http"
		if tlsManager != nil {
			scheme = "https"
		}
		logger.Info("Server starting", "scheme", scheme, "addr", addr)

		var err error
		if tlsManager != nil {
			if cfg.TLS.AutoCert {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			}
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	queue.Wait()
	logger.Info("Server stopped")
}

func handleJSONRPC(
	w http.ResponseWriter,
	r *http.Request,
	mcpServer *mcp.Server,
	logger *observability.Logger,
	metrics *observability.MetricsCollector,
	tracerProvider *observability.TracerProvider,
) {
	startTime := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read request body", "error", err)
		sendJSONRPCError(w, nil, protocol.ParseError, "Failed to read request", nil)
		return
	}
	defer r.Body.Close()

	var req protocol.Request
	if err := json.Unmarshal(body, &req); err != nil {
		logger.Error("Invalid JSON in request", "error", err)
		sendJSONRPCError(w, nil, protocol.ParseError, "Invalid JSON", nil)
		return
	}
	if req.JSONRPC != protocol.JSONRPCVersion {
		logger.Warn("Invalid JSON-RPC version", "version", req.JSONRPC)
		sendJSONRPCError(w, req.ID, protocol.InvalidRequest, "Invalid JSON-RPC version", nil)
		return
	}
	if req.Method == "" {
		logger.Warn("Missing method in request")
		sendJSONRPCError(w, req.ID, protocol.InvalidRequest, "Method required", nil)
		return
	}

	logger.Debug("Handling MCP request", "method", req.Method)
	if metrics != nil {
		metrics.MCPRequestsInFlight.WithLabelValues(req.Method).Inc()
		defer metrics.MCPRequestsInFlight.WithLabelValues(req.Method).Dec()
	}

	result, err := mcpServer.Handle(req.Method, req.Params)

	duration := time.Since(startTime).Seconds()
	if metrics != nil {
		metrics.MCPRequestDuration.WithLabelValues(req.Method).Observe(duration)
		if err != nil {
			metrics.MCPRequestsTotal.WithLabelValues(req.Method, "error").Inc()
			metrics.MCPErrors.WithLabelValues(req.Method, "handler_error").Inc()
		} else {
			metrics.MCPRequestsTotal.WithLabelValues(req.Method, "success").Inc()
		}
	}

	if err != nil {
		logger.Error("Handler error", "method", req.Method, "error", err, "duration_ms", duration*1000)
		if protoErr, ok := err.(*protocol.Error); ok {
			sendJSONRPCError(w, req.ID, protoErr.Code, protoErr.Message, protoErr.Data)
		} else {
			sendJSONRPCError(w, req.ID, protocol.InternalError, err.Error(), nil)
		}
		return
	}

	logger.Debug("Request handled successfully", "method", req.Method, "duration_ms", duration*1000)
	sendJSONRPCResult(w, req.ID, result)
}

func sendJSONRPCResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		sendJSONRPCError(w, id, protocol.InternalError, "Failed to marshal result", nil)
		return
	}
	resp := protocol.Response{JSONRPC: protocol.JSONRPCVersion, Result: resultJSON, ID: id}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	// #nosec G104 - Error encoding after WriteHeader means broken connection, no recovery possible
	json.NewEncoder(w).Encode(resp)
}

func sendJSONRPCError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	var dataJSON json.RawMessage
	if data != nil {
		var err error
		dataJSON, err = json.Marshal(data)
		if err != nil {
			dataJSON = nil
		}
	}
	resp := protocol.Response{
		JSONRPC: protocol.JSONRPCVersion,
		Error:   &protocol.Error{Code: code, Message: message, Data: dataJSON},
		ID:      id,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	// #nosec G104 - Error encoding after WriteHeader means broken connection, no recovery possible
	json.NewEncoder(w).Encode(resp)
}
