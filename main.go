package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"SMTS-backend/internal/inventory"
	"SMTS-backend/internal/lending"
	"SMTS-backend/internal/notify"
	"SMTS-backend/internal/platform/auth"
	"SMTS-backend/internal/platform/config"
	"SMTS-backend/internal/platform/db"
	"SMTS-backend/internal/platform/logger"
	"SMTS-backend/internal/platform/metrics"
	"SMTS-backend/internal/reminder"
)

// dev モードで JWT_SECRET 未設定のときだけ使う
const devJWTSecret = "dev-only-secret"

func main() {
	// 設定読み込み
	cfg, err := config.Load("config/config.yaml", ".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(cfg.Mode)
	slog.SetDefault(log)
	log.Info("starting", "mode", cfg.Mode, "version", cfg.Version)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	conn, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("connected to DB", "driver", cfg.DB.Driver, "dbname", cfg.DB.DBName)

	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		log.Warn("JWT_SECRET not set, using development secret")
		secret = []byte(devJWTSecret)
	}

	m := metrics.New()

	// 通知（メール未設定ならログのみ）
	queue := notify.NewQueue(cfg.Notify.QueueSize, m, log)
	var sender notify.Sender = notify.NewLogSender(log)
	if cfg.Mail.Enabled() {
		smtpSender, err := notify.NewSMTPSender(cfg.Mail)
		if err != nil {
			return err
		}
		sender = smtpSender
	}
	var alerter notify.Alerter
	if cfg.Telegram.Enabled() {
		a, err := notify.NewTelegramAlerter(cfg.Telegram.Token, cfg.Telegram.AdminChatID)
		if err != nil {
			log.Warn("telegram alerts disabled", "err", err)
		} else {
			alerter = a
		}
	}

	authSvc := auth.NewService(conn, secret, cfg.Auth.TokenTTL)
	invSvc := inventory.NewService(conn, log)
	lendSvc := lending.NewService(conn, queue, m, log)

	dispatcher := notify.NewDispatcher(sender, alerter, authSvc, m, log)
	schedule, err := cfg.Reminder.ParseSchedule()
	if err != nil {
		return err
	}
	scanner := reminder.NewScanner(lendSvc, queue, schedule, cfg.Reminder.Horizon, m, log)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == config.ModeDev {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス・メトリクス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	api := r.Group("/api")
	auth.RegisterPublicRoutes(api, authSvc)

	secured := api.Group("", auth.RequireAuth(secret))
	auth.RegisterRoutes(secured, authSvc)
	inventory.RegisterRoutes(secured, invSvc)
	lending.RegisterRoutes(secured, lendSvc)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx, queue, cfg.Notify.Workers)
	}()
	go func() {
		defer wg.Done()
		scanner.Run(ctx)
	}()

	errc := make(chan error, 1)
	go func() {
		var err error
		if cfg.HTTP.Cert != "" && cfg.HTTP.Key != "" {
			// TLS設定（config/tls/<mode>/ 配下）
			certFile := filepath.Join("config", "tls", cfg.Mode, cfg.HTTP.Cert)
			keyFile := filepath.Join("config", "tls", cfg.Mode, cfg.HTTP.Key)
			log.Info("listening (TLS)", "addr", srv.Addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Info("listening", "addr", srv.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-errc:
		stop()
		wg.Wait()
		return err
	}
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	wg.Wait()
	return nil
}
