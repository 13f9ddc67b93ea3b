package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/noterag/noterag/internal/config"
	dbRedis "github.com/noterag/noterag/internal/db/redis"
	"github.com/noterag/noterag/internal/dedupe"
	"github.com/noterag/noterag/internal/domain"
	"github.com/noterag/noterag/internal/domain/note"
	embCache "github.com/noterag/noterag/internal/embedding/cache"
	embFallback "github.com/noterag/noterag/internal/embedding/fallback"
	embLocal "github.com/noterag/noterag/internal/embedding/local"
	embOpenAI "github.com/noterag/noterag/internal/embedding/openai"
	logpkg "github.com/noterag/noterag/internal/logger"
	"github.com/noterag/noterag/internal/metrics"
	"github.com/noterag/noterag/internal/search"
	"github.com/noterag/noterag/internal/store"
	storeFallback "github.com/noterag/noterag/internal/store/fallback"
	storeLocal "github.com/noterag/noterag/internal/store/local"
	storeRedis "github.com/noterag/noterag/internal/store/redis"
	chiTransport "github.com/noterag/noterag/internal/transport/chi"
	notesuc "github.com/noterag/noterag/internal/usecase/notes"
	"github.com/noterag/noterag/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting noterag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Bool("remote_store", cfg.RemoteConfigured()),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	ctx := context.Background()

	// Embedder chain — composition root
	cacheFile := embCache.NewFile(cfg.Cache.Path, cfg.Cache.FlushEvery, logger)
	if err := cacheFile.Load(); err != nil {
		logger.Warn("Embedding cache load failed", zap.Error(err))
	}
	defer func() { _ = cacheFile.Close() }()

	embedder, batchEmbedder := buildEmbedder(cfg, cacheFile, logger)

	// Storage tiers: remote (when configured) behind the fallback controller,
	// local snapshot store as the degraded tier.
	localStore := storeLocal.New(cfg.Snapshot.Path, logger)
	docs := buildDocStore(ctx, cfg, localStore, logger)

	if err := docs.Init(ctx); err != nil {
		logger.Fatal("Failed to initialize document store", zap.Error(err))
	}
	logger.Info("Document store ready", zap.String("mode", string(docs.Mode())))

	// Query expansion is optional and best-effort.
	var expander *search.QueryExpander
	if cfg.Embedding.APIKey != "" && cfg.Embedding.ExpansionModel != "" {
		expander = search.NewQueryExpander(
			cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.ExpansionModel, logger,
		)
	}

	engine := search.NewEngine(embedder, docs, searchExpander(expander), searchConfig(cfg), logger)

	dedup := dedupe.New(time.Duration(cfg.Dedupe.TTLSec) * time.Second)

	noteSvc := notesuc.New(docs, docs, embedder, batchEmbedder, engine, dedup, logger)

	server := chiTransport.NewServer(noteSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Fallback(local).
// With no API key configured, the deterministic local embedder serves directly.
func buildEmbedder(
	cfg config.Config,
	cacheFile *embCache.File,
	logger *zap.Logger,
) (domain.Embedder, domain.BatchEmbedder) {
	localEmb := embLocal.New(cfg.Embedding.Dimensions)

	if cfg.Embedding.APIKey == "" {
		logger.Info("No embedding provider configured, using deterministic local embedder")
		return localEmb, localEmb
	}

	base := embOpenAI.NewEmbedder(&embOpenAI.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	// The cache wraps only the provider so deterministic fallback vectors never
	// enter the provider's cache namespace.
	cached := embCache.New(
		base, cacheFile, cfg.Embedding.Provider, cfg.Embedding.Model,
		metrics.EmbeddingCacheTotal, logger,
	)

	chain := embFallback.New(&embFallback.Config{
		Primary:   cached,
		Batch:     cached,
		Secondary: localEmb,
		Retries:   cfg.Embedding.Retries,
		Logger:    logger,
	})

	logger.Info("Embedder chain created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)
	return chain, chain
}

// buildDocStore wires the fallback controller over the remote and local tiers.
// Without a configured remote, the controller starts degraded from the outset.
func buildDocStore(
	ctx context.Context,
	cfg config.Config,
	localStore store.DocStore,
	logger *zap.Logger,
) *storeFallback.Controller {
	var remote store.DocStore

	if cfg.RemoteConfigured() {
		dbStore, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Warn("Failed to create remote store client, starting degraded", zap.Error(err))
		} else {
			readiness := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
			if err := dbStore.WaitForReady(ctx, readiness); err != nil {
				logger.Warn("Remote store not ready, starting degraded", zap.Error(err))
				dbStore.Close()
			} else {
				remote = storeRedis.New(dbStore, storeRedis.Config{
					KeyPrefix:   cfg.Storage.KeyPrefix,
					VectorDim:   cfg.Embedding.Dimensions,
					HNSWM:       cfg.Storage.HNSWM,
					EFConstruct: cfg.Storage.HNSWEFConstruct,
				})
				logger.Info("Connected to remote store")
			}
		}
	}

	if remote == nil {
		// A controller with an absent remote demotes on the first Init attempt;
		// give it a stub that always reports connectivity failure instead.
		remote = unavailableStore{}
	}
	return storeFallback.New(remote, localStore, logger, metrics.ModeReporter{})
}

func searchConfig(cfg config.Config) search.Config {
	sc := search.DefaultConfig()
	sc.VectorWeight = cfg.Search.VectorWeight
	sc.KeywordWeight = cfg.Search.KeywordWeight
	sc.DefaultThreshold = cfg.Search.DefaultThreshold
	sc.ShortThreshold = cfg.Search.ShortThreshold
	sc.MediumThreshold = cfg.Search.MediumThreshold
	sc.BoostFactor = cfg.Search.BoostFactor
	sc.TechTerms = cfg.Search.TechTerms
	return sc
}

// searchExpander converts a possibly-nil concrete expander into the engine's
// optional dependency without the typed-nil interface gotcha.
func searchExpander(e *search.QueryExpander) search.Expander {
	if e == nil {
		return nil
	}
	return e
}

// unavailableStore stands in for an unconfigured remote backend. Every call
// fails with a connectivity error, so the controller demotes on first use.
type unavailableStore struct{}

var errNoRemote = fmt.Errorf("%w: no remote store configured", domain.ErrConnectivity)

func (unavailableStore) Init(context.Context) error                    { return errNoRemote }
func (unavailableStore) Add(context.Context, note.Note) error          { return errNoRemote }
func (unavailableStore) Update(context.Context, note.Note) error       { return errNoRemote }
func (unavailableStore) Delete(context.Context, string) error          { return errNoRemote }
func (unavailableStore) Get(context.Context, string) (note.Note, error) {
	return note.Note{}, errNoRemote
}
func (unavailableStore) All(context.Context) ([]note.Note, error)    { return nil, errNoRemote }
func (unavailableStore) Count(context.Context) (int, error)          { return 0, errNoRemote }
func (unavailableStore) ListIDs(context.Context) ([]string, error)   { return nil, errNoRemote }
func (unavailableStore) Query(context.Context, []float32, int, float64) ([]store.Hit, error) {
	return nil, errNoRemote
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
