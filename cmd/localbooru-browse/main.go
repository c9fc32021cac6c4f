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

	localbooru "github.com/null-order/localbooru-sub000"
	"github.com/null-order/localbooru-sub000/internal/config"
	logpkg "github.com/null-order/localbooru-sub000/internal/logger"
	"github.com/null-order/localbooru-sub000/internal/metrics"
	chiTransport "github.com/null-order/localbooru-sub000/internal/transport/chi"
	openaiEmb "github.com/null-order/localbooru-sub000/internal/transport/openai"
	"github.com/null-order/localbooru-sub000/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting localbooru browse bridge",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("server", cfg.Server.BaseURL),
		zap.Int("bridge_port", cfg.Bridge.Port),
	)

	opts := []localbooru.Option{
		localbooru.WithBaseURL(cfg.Server.BaseURL),
		localbooru.WithHTTPTimeout(time.Duration(cfg.Server.TimeoutSec) * time.Second),
		localbooru.WithLogger(logger),
		localbooru.WithPageSize(cfg.Browse.PageSize),
		localbooru.WithDebounce(time.Duration(cfg.Browse.DebounceMs) * time.Millisecond),
		localbooru.WithAnchorPadding(cfg.Browse.AnchorPaddingPx),
	}

	if len(cfg.Cache.Addrs) > 0 {
		opts = append(opts, localbooru.WithTagCache(
			cfg.Cache.Addrs,
			cfg.Cache.Password,
			time.Duration(cfg.Cache.TTLSec)*time.Second,
		))
		logger.Info("Tag cache enabled", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	if cfg.Embedding.Model != "" {
		embedder := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
		opts = append(opts, localbooru.WithVectorizer(embedder))
		logger.Info("Local text vectorizer enabled",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	}

	engine, err := localbooru.New(opts...)
	if err != nil {
		logger.Fatal("Failed to create engine", zap.Error(err))
	}
	defer engine.Close()

	server := chiTransport.NewServer(engine, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.Bridge.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Bridge.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Bridge.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP bridge", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP bridge error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Bridge.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Bridge stopped gracefully")
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

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
