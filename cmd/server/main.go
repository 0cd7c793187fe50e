package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"spin-rewards/internal/auth"
	"spin-rewards/internal/cache"
	"spin-rewards/internal/config"
	"spin-rewards/internal/database"
	"spin-rewards/internal/handlers"
	"spin-rewards/internal/lib/logger/sl"
	"spin-rewards/internal/middleware"
	"spin-rewards/internal/scheduler"
	adminsvc "spin-rewards/internal/services/admin"
	"spin-rewards/internal/services/draw"
	"spin-rewards/internal/services/mailer"
	"spin-rewards/internal/services/redeem"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", sl.Err(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", sl.Err(err))
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("database ready", "dialect", store.Dialect())

	mail := mailer.New(mailer.Config{
		Host:    cfg.SMTP.Host,
		Port:    cfg.SMTP.Port,
		User:    cfg.SMTP.User,
		Pass:    cfg.SMTP.Pass,
		From:    cfg.SMTP.From,
		BaseURL: cfg.AppBaseURL,
	})
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST not set, email delivery disabled")
	}

	jwtMgr := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer)
	prizeCache := cache.NewPrizeCache(cfg.PrizeCacheTTL, store.ListActivePrizes)
	drawSvc := draw.NewService(store, prizeCache, mail, logger, draw.Config{
		RedemptionTTL: cfg.RedemptionTTL,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	redeemSvc := redeem.NewService(store, mail, logger, cfg.NotifyTimeout)
	otpSvc := auth.NewOTPService(store, mail, logger, cfg.OTPTTL)
	settingsSvc := adminsvc.NewSettingsService(cfg.EnvFilePath)

	pruner := scheduler.NewOTPPruner(store, cfg.OTPPruneTick, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger))

	handler := handlers.NewHandler(handlers.Deps{
		Config:   cfg,
		Store:    store,
		Draw:     drawSvc,
		Redeem:   redeemSvc,
		OTP:      otpSvc,
		Settings: settingsSvc,
		JWT:      jwtMgr,
		Cache:    prizeCache,
		Logger:   logger,
	})
	handlers.RegisterRoutes(r, handler, jwtMgr, cfg.AdminAllowedIPs)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", sl.Err(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", sl.Err(err))
	}
	logger.Info("server stopped")
}
