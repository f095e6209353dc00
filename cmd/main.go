package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventwall/internal/config"
	"eventwall/internal/handlers"
	"eventwall/internal/persist"
	"eventwall/internal/relay"
	"eventwall/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	// 1. Load configuration from .env and the environment
	cfg, err := config.New()
	if err != nil {
		logger.Fatalf("Failed to load config: %+v", err)
	}

	// 2. Initialize logging, rotating into a file when one is configured
	var out io.Writer = io.Discard
	if cfg.Log.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
		defer rotator.Close()
		out = rotator
	}
	defer logger.Init("eventwall", cfg.Log.Verbose || cfg.Log.File == "", false, out).Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Errorf("Server stopped with error: %+v", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	g, ctx := errgroup.WithContext(ctx)
	opts := services.Options{
		CodeLength:       cfg.Engine.CodeLength,
		VerifyCodeLength: cfg.Engine.VerifyCodeLength,
	}

	// 3. Optional write-through persistence of activity snapshots
	if cfg.MySQL.Host != "" {
		db, err := persist.Open(cfg.MySQL)
		if err != nil {
			return err
		}
		recorder := persist.NewRecorder(persist.NewGormWriter(db), cfg.MySQL.Queue)
		opts.Sink = recorder
		g.Go(func() error { return recorder.Run(ctx) })
		logger.Infof("Persisting snapshots to mysql %s/%s", cfg.MySQL.Host, cfg.MySQL.DBName)
	}

	// 4. Initialize the engine that owns every live activity
	engine := services.NewEngine(opts)

	// 5. Optional fan-out of every event to redis for other processes
	if cfg.Redis.Addr != "" {
		rdb, err := relay.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		r := relay.New(rdb, cfg.Redis.ChannelPrefix, cfg.Redis.Queue)
		engine.Bus.Tap(r.Handle)
		g.Go(func() error { return r.Run(ctx) })
		logger.Infof("Relaying events to redis %s under %q", cfg.Redis.Addr, cfg.Redis.ChannelPrefix)
	}

	// 6. Set up the Gin router
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger())
	handlers.NewHTTPHandler(engine, handlers.StreamOptions{
		Buffer:    cfg.Stream.Buffer,
		Heartbeat: cfg.Stream.Heartbeat,
	}).RegisterRoutes(router)

	// 7. End activities whose window has closed
	g.Go(func() error { return engine.RunSweeper(ctx, cfg.Engine.SweepInterval) })

	// 8. Run the server until the context is cancelled. Requests inherit ctx so
	// open streams end as soon as shutdown starts.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	g.Go(func() error {
		logger.Infof("Server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return srv.Close()
		}
		return nil
	})

	return g.Wait()
}
