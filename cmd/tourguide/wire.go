package main

import (
	"context"
	"fmt"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/museum-robotics/tourguide-core/internal/audit"
	"github.com/museum-robotics/tourguide-core/internal/bridges/mqttbridge"
	"github.com/museum-robotics/tourguide-core/internal/bridges/robot"
	"github.com/museum-robotics/tourguide-core/internal/bridges/rosbridge"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/config"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/database"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/logging"
	"github.com/museum-robotics/tourguide-core/internal/tour"
	"github.com/museum-robotics/tourguide-core/migrations"
)

// robotStack is the broker connection and the components publishing
// through it. One stack exists per process.
type robotStack struct {
	conn     *robot.Connection
	streamer *robot.AudioStreamer
	starter  *robot.TourStarter

	waitTimeout time.Duration
}

// newDialer picks the broker transport named by broker.transport.
func newDialer(cfg *config.Config, log *logging.Logger) robot.Dialer {
	if cfg.Broker.Transport == config.TransportMQTT {
		return mqttbridge.NewDialer(cfg.MQTT, log.Component("mqtt"))
	}
	return rosbridge.NewDialer(rosbridge.DialerOptions{
		HandshakeTimeout: cfg.Broker.ConnectTimeout,
		Logger:           log.Component("rosbridge"),
	})
}

func credentialsFrom(a config.BrokerAuthConfig) robot.Credentials {
	return robot.Credentials{
		MAC:    a.MAC,
		Client: a.Client,
		Dest:   a.Dest,
		Rand:   a.Rand,
		Time:   a.T,
		Level:  a.Level,
		End:    a.End,
	}
}

// brokerURL is what the dialer is given. The MQTT dialer takes its address
// from the mqtt section, so the URL only labels the endpoint in logs.
func brokerURL(cfg *config.Config) string {
	if cfg.Broker.Transport == config.TransportMQTT {
		return fmt.Sprintf("mqtt://%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
	}
	return cfg.Broker.URL
}

// newRobotStack builds the connection, streamer and tour starter. recorder
// may be nil.
func newRobotStack(cfg *config.Config, log *logging.Logger, recorder robot.Recorder) (*robotStack, error) {
	conn, err := robot.NewConnection(robot.Options{
		Dialer:               newDialer(cfg, log),
		URL:                  brokerURL(cfg),
		Credentials:          credentialsFrom(cfg.Broker.Auth),
		ConnectTimeout:       cfg.Broker.ConnectTimeout,
		VerifyTimeout:        cfg.Broker.VerifyTimeout,
		ReconnectInterval:    cfg.Broker.ReconnectInterval,
		MaxReconnectAttempts: cfg.Broker.MaxReconnectAttempts,
		Logger:               log.Component("robot"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating robot connection: %w", err)
	}

	streamer := robot.NewAudioStreamer(conn, robot.StreamerOptions{
		ChunkSize:  cfg.Audio.ChunkSize,
		ChunkDelay: time.Duration(cfg.Audio.ChunkDelayMS) * time.Millisecond,
		AckTimeout: cfg.Audio.AckTimeout,
		Logger:     log.Component("audio"),
		Recorder:   recorder,
	})
	starter := robot.NewTourStarter(conn, streamer, robot.TourStarterOptions{
		ConfirmTimeout: cfg.Tour.ConfirmTimeout,
		Logger:         log.Component("tour"),
	})

	return &robotStack{
		conn:        conn,
		streamer:    streamer,
		starter:     starter,
		waitTimeout: cfg.Broker.ConnectTimeout + cfg.Broker.VerifyTimeout,
	}, nil
}

// connectAndWait connects and blocks until the handshake has authenticated
// the session, or the connect and verify budgets are spent.
func (s *robotStack) connectAndWait(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to robot: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()
	if err := s.conn.WaitAuthenticated(waitCtx); err != nil {
		return fmt.Errorf("waiting for robot authentication: %w", err)
	}
	return nil
}

// shutdown ends the connection lifecycle; the supervisor does not restart it.
func (s *robotStack) shutdown(log *logging.Logger) {
	if err := s.conn.Shutdown(); err != nil {
		log.Warn("error shutting down robot connection", "error", err)
	}
}

// store is the tour database as the CLI uses it.
type store struct {
	tours tour.Repository
	audit audit.Repository
}

// withStore opens the database for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, st *store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := openDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // short CLI session, nothing to recover

	return fn(cmd.Context(), cfg, &store{
		tours: tour.NewSQLiteRepository(db.DB),
		audit: audit.NewSQLiteRepository(db.DB),
	})
}

// record writes an audit entry. A failed write is logged only.
func (s *store) record(ctx context.Context, log *logging.Logger, e audit.Entry) {
	if u, err := user.Current(); err == nil {
		e.UserID = u.Username
	}
	if err := s.audit.Create(context.WithoutCancel(ctx), &e); err != nil {
		log.Warn("recording audit entry failed", "action", e.Action, "error", err)
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.OpenMigrated(ctx, database.ConfigFrom(cfg.Database), migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// commandLogger logs to stderr so command output on stdout stays clean.
func commandLogger(cmd *cobra.Command, cfg *config.Config) *logging.Logger {
	return logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr())
}
