// Package httpapi serves km over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/kernel-memory/internal/memory"
	"github.com/mvp-joe/kernel-memory/internal/metrics"
	"github.com/mvp-joe/kernel-memory/internal/node"
	"github.com/mvp-joe/kernel-memory/internal/storage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// Memory is the part of memory.Service the API serves.
type Memory interface {
	Search(ctx context.Context, req memory.SearchRequest) (*memory.SearchResponse, error)
	Get(ctx context.Context, nodeID, id string) (*memory.Record, error)
	Put(ctx context.Context, nodeID string, doc *storage.Content) (*node.PutResult, error)
	Delete(ctx context.Context, nodeID, id string) (bool, error)
	Nodes(ctx context.Context) []memory.NodeSummary
}

// Options configure the API.
type Options struct {
	Version        string
	AllowedOrigins []string
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

type api struct {
	mem     Memory
	schemas *schemas
	opts    Options
}

// NewHandler builds the router.
func NewHandler(mem Memory, opts Options) (http.Handler, error) {
	s, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	a := &api{mem: mem, schemas: s, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.observe)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	r.Get("/nodes", a.listNodes)
	r.Post("/search", a.search)
	r.Get("/nodes/{node}/content/{id}", a.getContent)
	r.Put("/nodes/{node}/content/{id}", a.putContent)
	r.Delete("/nodes/{node}/content/{id}", a.deleteContent)
	return r, nil
}

// observe logs every request and records it in the metrics under its
// route pattern.
func (a *api) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.opts.Metrics.ObserveHTTP(r.Method, route, status, time.Since(start))
		a.opts.Logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// Serve runs the API on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Msg("HTTP API shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
