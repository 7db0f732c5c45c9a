package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fire/command/internal/config"
	"fire/command/internal/dispatch"
	"fire/command/internal/fieldunit"
	"fire/command/internal/realtime"
	"fire/command/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var errServerShutdown = errors.New("server shutting down")

// Server wires configuration, the dispatch engine, the event hub and HTTP routing together.
type Server struct {
	cfg        config.Config
	log        zerolog.Logger
	closeStore func()
	coord      *dispatch.Coordinator
	hub        *realtime.Hub
	gateway    *fieldunit.Gateway
	validate   *validator.Validate
	authMw     *AuthMiddleware
	upgrader   websocket.Upgrader
	startedAt  time.Time
}

// New opens the configured store, recovers dispatch state and prepares shared dependencies.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
	opts, err := CoordinatorOptions(cfg.Dispatch)
	if err != nil {
		return nil, err
	}

	backend, closeStore, err := store.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	srv := newServer(cfg, log, backend, opts)
	srv.closeStore = closeStore

	if err := srv.coord.Recover(ctx); err != nil {
		srv.Close()
		return nil, fmt.Errorf("recover dispatch state: %w", err)
	}

	if cfg.Keycloak.Enabled {
		authMw, err := NewAuthMiddleware(ctx, cfg.Keycloak, log)
		if err != nil {
			srv.Close()
			return nil, fmt.Errorf("init auth middleware: %w", err)
		}
		srv.authMw = authMw
	} else {
		log.Warn().Msg("authentication disabled; /v1 is open")
	}

	if cfg.MQTT.Broker != "" {
		srv.gateway = fieldunit.New(cfg.MQTT, srv.coord, log)
	}

	return srv, nil
}

func newServer(cfg config.Config, log zerolog.Logger, backend store.Backend, opts dispatch.Options) *Server {
	hub := realtime.NewHub(log)
	s := &Server{
		cfg:        cfg,
		log:        log,
		closeStore: func() {},
		hub:        hub,
		coord:      dispatch.NewCoordinator(backend, backend, realtime.NewNotifier(hub), opts, log),
		validate:   newValidator(),
		startedAt:  time.Now().UTC(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// CoordinatorOptions turns the dispatch settings into engine options.
func CoordinatorOptions(cfg config.DispatchConfig) (dispatch.Options, error) {
	sizes := make(map[dispatch.IncidentType]int, len(cfg.CrewSizes))
	for raw, n := range cfg.CrewSizes {
		kind, err := dispatch.ParseIncidentType(raw)
		if err != nil {
			return dispatch.Options{}, fmt.Errorf("DISPATCH_CREW_SIZES: %w", err)
		}
		sizes[kind] = n
	}
	return dispatch.Options{
		Crew:               dispatch.CrewPolicy{Sizes: sizes, Default: cfg.DefaultCrew},
		PersistenceTimeout: cfg.PersistenceTimeout,
		AllocationInterval: cfg.AllocationInterval,
		ReconcileInterval:  cfg.ReconcileInterval,
		AutoDispatch:       cfg.AutoDispatch,
		CallNumberAttempts: cfg.CallNumberAttempts,
	}, nil
}

// Close releases auth and store resources.
func (s *Server) Close() {
	if s.authMw != nil {
		s.authMw.Close()
	}
	if s.closeStore != nil {
		s.closeStore()
	}
}

// Run serves HTTP, the dispatch background loop and the field-unit gateway
// until the context is cancelled or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.HTTP.Address,
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.coord.Run(gctx)
	})

	if s.gateway != nil {
		g.Go(func() error {
			return s.gateway.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		// Hijacked websocket connections are not closed by Shutdown.
		s.hub.CloseAll(errServerShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("graceful shutdown failed")
		}
		return nil
	})

	g.Go(func() error {
		s.log.Info().Str("addr", s.cfg.HTTP.Address).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return g.Wait()
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("latitude", func(fl validator.FieldLevel) bool {
		val, ok := fl.Field().Interface().(float64)
		if !ok {
			return false
		}
		return val >= -90 && val <= 90
	})
	_ = v.RegisterValidation("longitude", func(fl validator.FieldLevel) bool {
		val, ok := fl.Field().Interface().(float64)
		if !ok {
			return false
		}
		return val >= -180 && val <= 180
	})
	_ = v.RegisterValidation("incident_type", func(fl validator.FieldLevel) bool {
		_, err := dispatch.ParseIncidentType(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		_, err := dispatch.ParsePriority(fl.Field().String())
		return err == nil
	})
	return v
}
