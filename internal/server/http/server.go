// Package httpserver exposes the cookie pool and fans query over HTTP.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/and161185/cookiepool/internal/auth"
	"github.com/and161185/cookiepool/internal/model"
	"github.com/and161185/cookiepool/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// FansQuerier answers follower-count queries.
type FansQuerier interface {
	Query(ctx context.Context, q service.FansQuery) (model.FansResult, error)
}

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Pool     service.PoolService
	Fans     FansQuerier
	Tokens   *auth.Tokens
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// Server is the HTTP front end.
type Server struct {
	pool   service.PoolService
	fans   FansQuerier
	tokens *auth.Tokens
	log    *zap.Logger

	router     chi.Router
	httpServer *http.Server
}

// New builds the router.
func New(addr string, d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	s := &Server{pool: d.Pool, fans: d.Fans, tokens: d.Tokens, log: d.Log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/", s.handleRoot)
		r.Post("/fans-query", s.handleFansQuery)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Post("/cookies", s.handleAddCookie)
			r.Get("/cookies/select", s.handleSelectCookie)
			r.Get("/cookie-status", s.handleCookieStatus)
			r.Get("/cookie-details", s.handleCookieDetails)
			r.Post("/clean-cookies", s.handleCleanCookies)
		})
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http listening", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("http shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
