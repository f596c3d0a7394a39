package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/padraicbc/huntapi/adminkeys"
	"github.com/padraicbc/huntapi/cache"
	"github.com/padraicbc/huntapi/config"
	"github.com/padraicbc/huntapi/db"
	"github.com/padraicbc/huntapi/handlers"
	applog "github.com/padraicbc/huntapi/logger"
	"github.com/padraicbc/huntapi/metrics"
	mw "github.com/padraicbc/huntapi/middleware"
	"github.com/padraicbc/huntapi/scheduler"
)

func main() {
	// Amounts go out as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	cfg := config.Load()
	logger, err := applog.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx := context.Background()
	bdb := db.Setup(cfg)
	defer bdb.Close()

	if err := db.CreateTables(ctx, bdb); err != nil {
		logger.Fatal("create tables failed", zap.Error(err))
	}

	entries, err := adminkeys.Load(cfg.AdminKeysFile)
	if err != nil {
		logger.Fatal("load admin keys failed", zap.String("file", cfg.AdminKeysFile), zap.Error(err))
	}
	n, err := adminkeys.Seed(ctx, bdb, cfg.SecretKey(), cfg.BootstrapAdminKey, entries)
	if err != nil {
		logger.Fatal("seed admin keys failed", zap.Error(err))
	}
	if n > 0 {
		logger.Info("admin keys seeded", zap.Int("count", n))
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal("register metrics failed", zap.Error(err))
	}

	var overlay *cache.Overlay
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, overlay cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			defer rdb.Close()
			overlay = cache.NewOverlay(rdb, cfg.OverlayCacheTTL)
			logger.Info("overlay cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.OverlayCacheTTL))
		}
	}

	sched, err := scheduler.Start(bdb, cfg.SessionCleanupInterval)
	if err != nil {
		logger.Fatal("start scheduler failed", zap.Error(err))
	}
	defer func() { _ = sched.Shutdown() }()

	auth := mw.NewAuthenticator(mw.BunSessions{DB: bdb}, cfg.SecretKey())
	h := handlers.New(bdb, cfg, auth, overlay)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			metrics.ObserveRequest(v.Method, v.Status)
			fields := []zap.Field{
				zap.Int("status", v.Status),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= 500:
				logger.Error("http request", fields...)
			case v.Status >= 400:
				logger.Warn("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"*", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", h.Healthz)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	requireAdmin := mw.RequireAdmin(auth)
	optionalAdmin := mw.OptionalAdmin(auth)

	api := e.Group("/api")

	// Admin session
	api.POST("/admin/login", h.Login)
	api.GET("/admin/check", h.CheckAdmin, optionalAdmin)
	api.POST("/admin/logout", h.Logout, requireAdmin)

	// Admin keys – superuser only
	keys := api.Group("/admin/keys", requireAdmin, mw.RequireCapability(mw.CapManageKeys))
	keys.GET("", h.ListKeys)
	keys.POST("", h.CreateKey)
	keys.PUT("/:id", h.UpdateKey)
	keys.DELETE("/:id", h.DeleteKey)
	api.POST("/admin/import-slots", h.ImportSlots, requireAdmin, mw.RequireCapability(mw.CapImportSlots))

	// Hunts
	api.GET("/hunts", h.Hunts, optionalAdmin)
	api.GET("/my-hunts", h.MyHunts, requireAdmin)
	api.GET("/live-hunts", h.LiveHunts)
	api.GET("/live-bonuses", h.LiveBonuses)
	api.GET("/hunts/:id", h.GetHunt, optionalAdmin)
	api.GET("/hunts/:id/stats", h.HuntStats, optionalAdmin)
	api.GET("/hunts/:id/bonuses", h.HuntBonuses, optionalAdmin)
	api.GET("/public/:token", h.PublicHunt)

	own := []echo.MiddlewareFunc{requireAdmin, mw.RequireCapability(mw.CapManageOwn)}
	api.POST("/hunts", h.CreateHunt, own...)
	api.PUT("/hunts/:id", h.UpdateHunt, own...)
	api.DELETE("/hunts/:id", h.DeleteHunt, own...)
	api.POST("/hunts/:id/start-playing", h.StartPlaying, own...)
	api.POST("/hunts/:id/stop-playing", h.StopPlaying, own...)

	// Bonuses
	api.POST("/hunts/:id/bonuses", h.CreateBonuses, own...)
	api.PUT("/hunts/:id/bonuses/order", h.ReorderBonuses, own...)
	api.PUT("/bonuses/:id", h.UpdateBonus, own...)
	api.DELETE("/bonuses/:id", h.DeleteBonus, own...)
	api.POST("/bonuses/:id/payout", h.RecordPayout, own...)

	// Overlays and totals
	api.GET("/obs-overlay/latest", h.LatestOverlay, optionalAdmin)
	api.GET("/obs-overlay/admin/:keyName", h.AdminOverlay)
	api.GET("/stats", h.Stats, optionalAdmin)
	api.GET("/latest-hunt", h.LatestHunt, optionalAdmin)

	// Slots
	api.GET("/slots", h.Slots)
	api.GET("/slots/search", h.SearchSlots)
	api.GET("/slots/providers", h.SlotProviders)
	api.GET("/slots/random", h.RandomSlot)
	api.GET("/slots/:name", h.SlotByName)

	// Raffles
	api.GET("/raffles", h.Raffles, own...)
	api.POST("/raffles", h.CreateRaffle, own...)
	api.GET("/raffles/:id", h.GetRaffle, own...)
	api.PUT("/raffles/:id", h.UpdateRaffle, own...)
	api.DELETE("/raffles/:id", h.DeleteRaffle, own...)
	api.GET("/raffles/:id/entries", h.RaffleEntries, own...)
	api.POST("/raffles/:id/entries", h.AddRaffleEntry, own...)
	api.DELETE("/raffles/:id/entries", h.ClearRaffleEntries, own...)
	api.GET("/raffles/:id/winners", h.RaffleWinners, own...)
	api.POST("/raffles/:id/draw-winners", h.DrawWinners, own...)
	api.POST("/raffles/:id/start", h.StartRaffle, own...)
	api.POST("/raffles/:id/pause", h.PauseRaffle, own...)
	api.POST("/raffles/:id/end", h.EndRaffle, own...)

	// Tournament bracket
	api.GET("/tournament", h.Tournament, own...)
	api.PUT("/tournament", h.UpdateTournament, own...)
	api.POST("/tournament/reset", h.ResetTournament, own...)
	api.POST("/tournament/decide", h.DecideMatch, own...)

	if cfg.Debug {
		logger.Info("starting server", zap.String("mode", "debug"), zap.String("addr", cfg.Port))
		if err := e.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server exited", zap.Error(err))
		}
		return
	}

	autoTLS := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache(".cache"),
		HostPolicy: autocert.HostWhitelist(cfg.TLSDomains...),
	}

	s := &http.Server{
		Addr:         ":443",
		Handler:      e,
		TLSConfig:    autoTLS.TLSConfig(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	logger.Info("starting server", zap.String("mode", "tls"), zap.Strings("domains", cfg.TLSDomains))
	if err := s.ListenAndServeTLS("", ""); err != http.ErrServerClosed {
		logger.Error("tls server exited", zap.Error(err))
		os.Exit(1)
	}
}
