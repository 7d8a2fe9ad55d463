// Package server assembles the HTTP surface: middleware chain, CORS, relay
// routes, readiness and metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"form-relay/internal/common/config"
	relayerrors "form-relay/internal/common/errors"
	"form-relay/internal/common/logger"
	"form-relay/internal/common/observability"
	"form-relay/internal/relay/handler"
	"form-relay/internal/relay/ratelimit"
)

// Check is a named readiness probe, e.g. a database ping.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Dependencies struct {
	Config        *config.Config
	Logger        logger.Logger
	Handler       *handler.Handler
	Limiter       *ratelimit.Limiter // nil disables throttling
	Observability *observability.Observability
	Checks        []Check
}

type Server struct {
	cfg     *config.Config
	logger  logger.Logger
	checks  []Check
	relay   *handler.Handler
	router  chi.Router
	httpSrv *http.Server
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func New(deps Dependencies) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	s := &Server{cfg: cfg, logger: log, checks: deps.Checks, relay: deps.Handler}

	errHandler := relayerrors.NewErrorHandler(log)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(log, deps.Observability))
	r.Use(errHandler.Recover)
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins(), cfg.App.IsProduction()))
	if deps.Limiter != nil {
		r.Use(postOnly(deps.Limiter.Middleware(errHandler)))
	}

	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	if deps.Handler != nil {
		if prefix := cfg.Server.RoutePrefix; prefix != "" && prefix != "/" {
			r.Route(prefix, deps.Handler.Routes)
		} else {
			deps.Handler.Routes(r)
		}
	}

	s.router = r
	return s
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := readyResponse{Status: "ready", Checks: map[string]string{}}
	status := http.StatusOK
	for _, c := range s.checks {
		if err := c.Fn(ctx); err != nil {
			resp.Checks[c.Name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	relayerrors.WriteJSON(w, status, resp)
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// pending audit work within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       config.GetDuration(s.cfg.Server.ReadTimeout),
		WriteTimeout:      config.GetDuration(s.cfg.Server.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Form relay server listening", map[string]interface{}{
			"addr":        s.httpSrv.Addr,
			"environment": s.cfg.App.Environment,
			"routePrefix": s.cfg.Server.RoutePrefix,
		})
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutdown signal received, draining requests", nil)
	timeout := config.GetDuration(s.cfg.Server.ShutdownTimeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if s.relay != nil {
		if err := s.relay.Wait(shutdownCtx); err != nil {
			s.logger.Warn("Background audit work did not finish before shutdown", map[string]interface{}{"error": err})
		}
	}
	s.logger.Info("Form relay server stopped", nil)
	return nil
}
