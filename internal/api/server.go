package api

import (
	"context"
	"net/http"
	"time"

	"github.com/farmstand/farmstand/internal/config"
	"github.com/farmstand/farmstand/internal/metrics"
	"github.com/farmstand/farmstand/internal/mqttclient"
	"github.com/farmstand/farmstand/internal/schema"
	"github.com/farmstand/farmstand/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions collects the dependencies of the HTTP surface. MQTT and
// Avatars may be nil.
type ServerOptions struct {
	Config    *config.Config
	Backend   Pinger
	Runner    *schema.Runner
	Avatars   storage.AvatarStore
	MQTT      *mqttclient.Client
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	r := NewRouter(opts)
	cfg := opts.Config
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

// NewRouter builds the route tree. Split out from NewServer for tests.
func NewRouter(opts ServerOptions) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	r.Handle("/metrics", promhttp.Handler())

	health := NewHealthHandler(opts.Backend, opts.MQTT, opts.Version, opts.StartTime)
	r.Route("/api/v1", func(r chi.Router) {
		// Health endpoint, no auth
		r.Get("/health", health.ServeHTTP)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(opts.Config.AuthToken))
			NewSetupHandler(opts.Runner, opts.Log).Routes(r)
			if opts.Avatars != nil {
				NewAvatarHandler(opts.Avatars, opts.Log).Routes(r)
			}
		})
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
