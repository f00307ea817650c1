package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskdeck/api"
	"taskdeck/config"
	"taskdeck/prefs"
	"taskdeck/storage"
	"taskdeck/view"
)

const shutdownTimeout = 20 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Debug {
			log.SetLevel(log.DebugLevel)
		}
		logger := log.New()

		store, err := storage.New(cfg.StorageConnectionString, cfg.TasksTable)
		if err != nil {
			return err
		}

		redisOpts, err := cfg.RedisOptions()
		if err != nil {
			return err
		}
		rc := redis.NewClient(redisOpts)
		defer func() { _ = rc.Close() }()
		themes := prefs.NewStore(rc)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		engine := view.NewEngine(store, logger)
		// A failed initial load is not fatal: the view reports the failed
		// state and POST /api/reload retries it.
		if err := engine.Load(ctx); err != nil {
			logger.WithError(err).Warn("initial task load failed")
		}

		e := echo.New()
		e.HideBanner = true
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{"*"},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
		e.Use(echoprometheus.NewMiddleware("taskdeck"))
		e.GET("/metrics", echoprometheus.NewHandler())

		api.Register(e, engine, themes, logger)

		go func() {
			logger.Infof("listening on %s", cfg.ListenAddr)
			if err := e.Start(cfg.ListenAddr); err != nil {
				logger.Infof("server stopped: %v", err)
			}
		}()

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
