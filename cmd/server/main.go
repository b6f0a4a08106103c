package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RescueDesk/internal/dashboard"
	handlers "RescueDesk/internal/handler"
	"RescueDesk/internal/listeners"
	"RescueDesk/internal/view"
	"RescueDesk/pkg/cache"
	"RescueDesk/pkg/config"
	"RescueDesk/pkg/i18n"
	"RescueDesk/pkg/logger"
	"RescueDesk/pkg/metrics"
	"RescueDesk/pkg/notification"
	"RescueDesk/pkg/sse"
	"RescueDesk/pkg/util"
	"RescueDesk/pkg/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		logger.Error("server exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log, cfg.Mode); err != nil {
		return err
	}
	defer logger.Sync()
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := util.OpenDatabase(cfg.DBDriver, cfg.DSN, cfg.Mode == "debug")
	if err != nil {
		return err
	}
	if err := migrate(db); err != nil {
		return err
	}

	m := metrics.NewMetrics()
	tr, err := i18n.NewI18nSupport(cfg.NotifyLang)
	if err != nil {
		return err
	}

	rdb := redisClient(cfg)
	if rdb != nil {
		defer rdb.Close()
	}

	store, source, err := openFeed(cfg, db, rdb)
	if err != nil {
		return err
	}
	defer source.Close()

	notified, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return err
	}
	defer notified.Close()
	idempotency := cache.NewGoCache(10 * time.Minute)
	defer idempotency.Close()

	events := sse.NewHub(30 * time.Second)
	wsHub := websocket.NewHub(websocket.LoadConfigFromEnv())
	defer wsHub.Close()

	dispatcher := notification.NewDispatcher(tr, cfg.NotifyLang, m,
		notification.SSESink(events),
		notification.WebSocketSink(wsHub),
	)
	if cfg.JPush.Enabled() {
		dispatcher.AddSink(notification.NewJPush(cfg.JPush, nil))
	}
	listeners.InitAlertListeners(util.Sig(), dispatcher)

	engine, err := openSearch()
	if err != nil {
		return err
	}
	defer engine.Close()

	media, err := mediaLocator(cfg)
	if err != nil {
		return err
	}

	dcfg, err := dashboard.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	svc, err := dashboard.New(dcfg, dashboard.Deps{
		Store:    store,
		Source:   source,
		Notified: notified,
		Notifier: dispatcher,
		Surface:  dashboard.NewHubSurface(wsHub),
		Geo:      geoClient(cfg, m),
		Search:   engine,
		Media:    media,
		Metrics:  m,
		Signals:  util.Sig(),
	})
	if err != nil {
		return err
	}
	defer svc.Dispose()

	svc.Live().OnView(func(v view.View) {
		if err := events.PublishJSON(sse.EventView, gin.H{"version": v.Version, "stats": v.Stats, "markers": len(v.Markers)}); err != nil {
			logger.Warn("publish view failed", zap.Error(err))
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Connect(ctx); err != nil {
		return err
	}
	if load := svc.LastLoad(); load.Failure != nil {
		logger.Warn("initial snapshot failed", zap.Error(load.Failure))
	}

	limiter, err := rateLimiter(cfg, rdb, m)
	if err != nil {
		return err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	handlers.NewHandlers(db, svc, handlers.Options{
		Events:      events,
		WS:          wsHub,
		Limiter:     limiter,
		Idempotency: idempotency,
		Metrics:     m,
		I18n:        tr,
	}).Register(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return nil
}
