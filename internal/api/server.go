package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/museum-robotics/tourguide-core/internal/audit"
	"github.com/museum-robotics/tourguide-core/internal/bridges/robot"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/config"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/logging"
	"github.com/museum-robotics/tourguide-core/internal/tour"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// RobotConnection is the broker connection as seen by the API.
type RobotConnection interface {
	Status() robot.Status
	IsAuthenticated() bool
	Connect(ctx context.Context) error
	Topics(ctx context.Context) ([]string, error)
	ClientCount(ctx context.Context) (int32, error)
	SendMoveCommand(ctx context.Context, goal robot.PoseSample) error
}

// TelemetrySource returns the last-known robot state.
type TelemetrySource interface {
	Snapshot() robot.Telemetry
}

// AudioSender uploads audio files to the robot.
type AudioSender interface {
	StreamFiles(ctx context.Context, paths []string) ([]robot.StreamReport, error)
}

// TourStarter streams a tour's narration and signals the start.
type TourStarter interface {
	StartTour(ctx context.Context, paths []string) (*robot.TourStartResult, error)
}

// AudioResolver maps a tour's POI audio references to files.
type AudioResolver interface {
	Paths(t *tour.Tour) ([]string, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Robot     RobotConnection
	Telemetry TelemetrySource
	Audio     AudioSender
	Starter   TourStarter
	Tours     tour.Repository
	Library   AudioResolver

	// Audit is optional. When set, robot commands are recorded.
	Audit audit.Repository

	// DB and History are optional and only feed /metrics.
	DB      DBStatser
	History HistorySink

	// ExternalHub is used instead of a server-owned hub when set. The
	// telemetry relay needs the hub before the server exists.
	ExternalHub *Hub
	Version     string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and the dashboard hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	robot     RobotConnection
	telemetry TelemetrySource
	audio     AudioSender
	starter   TourStarter
	tours     tour.Repository
	library   AudioResolver
	audit     audit.Repository
	db        DBStatser
	history   HistorySink
	version   string
	startTime time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool
	tickets     *ticketStore
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Robot == nil {
		return nil, fmt.Errorf("robot connection is required")
	}
	if deps.Tours == nil {
		return nil, fmt.Errorf("tour repository is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger.Component("api"),
		robot:     deps.Robot,
		telemetry: deps.Telemetry,
		audio:     deps.Audio,
		starter:   deps.Starter,
		tours:     deps.Tours,
		library:   deps.Library,
		audit:     deps.Audit,
		db:        deps.DB,
		history:   deps.History,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	s.hub.SetMoveHandler(s.moveRobot)

	return s, nil
}

// Hub returns the dashboard hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in the background.
// ctx bounds the hub and ticket cleanup goroutines.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to ten seconds
// for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
