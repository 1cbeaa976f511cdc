package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"liveline/internal/config"
	"liveline/internal/http/handler"
	"liveline/internal/queue"
	"liveline/internal/realtime"
	"liveline/internal/store/sqlstore"
)

var autoMigrate bool

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		Long:  `Start the HTTP API, the websocket push channel and the presence timer supervisor.`,
		RunE:  runServe,
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to a .env file (default: $ENV_FILE or ./.env)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", true, "Apply pending database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	runtime.GOMAXPROCS(runtime.NumCPU())

	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if autoMigrate {
		if err := sqlstore.Migrate(ctx, db, dialect, log); err != nil {
			return err
		}
	}

	rdb, err := config.NewRedis(ctx, cfg)
	if err != nil {
		return err
	}

	broker := realtime.NewBroker(log)
	opts := queue.Options{
		Publisher:         broker,
		Logger:            log,
		MetricsWindow:     cfg.MetricsWindow,
		MetricsMinSamples: cfg.MetricsMinSamples,
	}

	if rdb != nil {
		defer rdb.Close()

		bridge := realtime.NewRedisBridge(rdb, broker, log)
		opts.Publisher = realtime.Fanout{broker, bridge}
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("redis bridge stopped")
			}
		}()

		if cfg.TicketSequencer == "redis" {
			opts.Sequencer = queue.NewRedisSequencer(rdb)
		}
		log.WithField("instance_id", bridge.InstanceID()).Info("redis fan-out enabled")
	}

	engine := queue.New(sqlstore.New(db, dialect, log), opts)

	supervisor := queue.NewSupervisor(engine, cfg.SweepInterval, cfg.SweepWorkers, log)
	go supervisor.Start(ctx)
	defer supervisor.Stop()

	app := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		StrictRouting: true,
		Immutable:     true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE",
	}))

	signer := config.NewTicketSigner(cfg.TicketSecret, cfg.TicketTTL)
	handler.New(engine, broker, signer, log).Register(app)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr()).Info("server listening")
		errCh <- app.Listen(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Warn("graceful shutdown incomplete")
	}
	return nil
}
