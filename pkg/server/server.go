// Package server exposes the retrieval facade over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/readabook/pkg/catalog"
	"github.com/Sternrassler/readabook/pkg/metrics"
	"github.com/Sternrassler/readabook/pkg/segment"
)

const (
	// TextCacheControl lets shared caches keep text responses for a day and
	// serve them stale for a week while revalidating.
	TextCacheControl = "public, s-maxage=86400, stale-while-revalidate=604800"

	DefaultShutdownTimeout = 15 * time.Second
)

// Library is the retrieval facade consumed by the handlers.
type Library interface {
	GetListing(ctx context.Context, q catalog.Query) (*catalog.Listing, error)
	GetRecent(ctx context.Context, ids []int) ([]catalog.Document, error)
	GetDocument(ctx context.Context, id int) (*catalog.Document, error)
	GetRawText(ctx context.Context, id int) (string, error)
	GetDocumentText(ctx context.Context, id int) (*segment.ParseResult, error)
}

// Config holds server configuration.
type Config struct {
	Addr    string
	Library Library
	Logger  zerolog.Logger

	// ShutdownTimeout bounds graceful shutdown. Zero means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Server serves the HTTP API.
type Server struct {
	router          *chi.Mux
	httpServer      *http.Server
	lib             Library
	logger          zerolog.Logger
	shutdownTimeout time.Duration
}

// New creates a server and registers its routes.
func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(hlog.NewHandler(cfg.Logger))
	r.Use(requestIDLogger)
	r.Use(hlog.RemoteAddrHandler("ip"))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(chimw.Recoverer)

	s := &Server{
		router:          r,
		lib:             cfg.Library,
		logger:          cfg.Logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = DefaultShutdownTimeout
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Debug().Err(err).Msg("Error writing health check response")
		}
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/books", func(r chi.Router) {
		r.Get("/", s.handleListBooks)
		r.Get("/recent", s.handleRecentBooks)
		r.Get("/{id}", s.handleGetBook)
		r.Get("/{id}/text", s.handleGetText)
		r.Get("/{id}/chapters", s.handleGetChapters)
	})

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Dur("timeout", s.shutdownTimeout).Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// requestIDLogger adds chi's request id to the request logger.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			logger := zerolog.Ctx(r.Context())
			logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("req_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("Request handled")
}
