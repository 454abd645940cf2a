package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/museum-robotics/tourguide-core/internal/api"
	"github.com/museum-robotics/tourguide-core/internal/audit"
	"github.com/museum-robotics/tourguide-core/internal/bridges/robot"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/config"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/database"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/influxdb"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/logging"
	"github.com/museum-robotics/tourguide-core/internal/tour"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the robot connection, HTTP API and dashboard WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logging.New(cfg.Logging, version))
		},
	}
}

// serve wires every component, connects to the robot and blocks until ctx
// is cancelled. Components are torn down in reverse order of creation.
func serve(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	log.Info("starting tourguide",
		"version", version,
		"commit", commit,
		"build_date", date,
		"transport", cfg.Broker.Transport,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	// Telemetry history is optional.
	var (
		influxClient *influxdb.Client
		recorder     robot.Recorder
		history      api.HistorySink
	)
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorder = influxdb.NewRecorder(influxClient, cfg.Site.ID)
		history = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	stack, err := newRobotStack(cfg, log, recorder)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("shutting down robot connection")
		stack.shutdown(log)
	}()

	// The relay needs the hub before the API server exists.
	hub := api.NewHub(cfg.WebSocket, log)
	relay := robot.NewTelemetryRelay(stack.conn, hub, recorder, log.Component("telemetry"))

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Robot:       stack.conn,
		Telemetry:   relay,
		Audio:       stack.streamer,
		Starter:     stack.starter,
		Tours:       tour.NewSQLiteRepository(db.DB),
		Library:     tour.NewAudioLibrary(cfg.Audio.Dir),
		Audit:       audit.NewSQLiteRepository(db.DB),
		DB:          db,
		History:     history,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if err := server.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// A failed first connect is not fatal: the reconnect supervisor keeps
	// trying. Once it gives up, POST /robot/connect makes one more attempt.
	if err := stack.conn.Connect(gctx); err != nil {
		log.Warn("initial robot connect failed, reconnecting in background",
			"url", brokerURL(cfg),
			"error", err,
		)
	}

	if err := healthCheck(gctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, cleaning up")
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("tourguide stopped")
	return nil
}

// healthCheck verifies the infrastructure the API depends on. The robot is
// not checked: it may legitimately be offline at startup.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
