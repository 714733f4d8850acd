package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Kousuke-irie/bicycle-market/config"
	"github.com/Kousuke-irie/bicycle-market/database"
	"github.com/Kousuke-irie/bicycle-market/firebase"
	"github.com/Kousuke-irie/bicycle-market/gemini"
	"github.com/Kousuke-irie/bicycle-market/handlers"
	"github.com/Kousuke-irie/bicycle-market/logger"
	"github.com/Kousuke-irie/bicycle-market/middleware"
	"github.com/Kousuke-irie/bicycle-market/routes"
	"github.com/Kousuke-irie/bicycle-market/services"
	"github.com/Kousuke-irie/bicycle-market/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

var log = logger.New("main")

func main() {
	if err := run(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 1. 接続と初期化
	if err := database.InitDB(cfg.Database); err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	store, closeStore, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	defer closeStore()

	market := services.New(database.DBClient, cfg, store)

	var verifier firebase.TokenVerifier
	authClient, err := firebase.InitFirebase(ctx, cfg.Auth.FirebaseCredentialsFile)
	switch {
	case err == nil:
		verifier = authClient
	case cfg.Auth.TrustUserHeader:
		log.Warn("Firebase initialization failed, falling back to X-User-ID: %v", err)
	default:
		return fmt.Errorf("firebase initialization failed: %w", err)
	}

	handlers.Market = market
	handlers.Verifier = verifier
	handlers.Rules = cfg.Market
	if cfg.Gemini.ProjectID != "" {
		ai, err := gemini.NewClient(ctx, cfg.Gemini)
		if err != nil {
			log.Warn("AI assistant disabled: %v", err)
		} else {
			defer ai.Close()
			handlers.AI = ai
		}
	}

	// 2. ルーティング設定
	r := gin.Default()

	// CORS設定
	corsConfig := cors.DefaultConfig()
	if len(cfg.App.AllowedOrigins) == 0 || cfg.App.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.App.AllowedOrigins
		corsConfig.AllowWildcard = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-User-ID"}
	corsConfig.AllowCredentials = false
	r.Use(cors.New(corsConfig))

	// 静的ファイル（画像・ローカル保存の振込明細）の配信
	if cfg.Storage.Backend == "local" && strings.HasPrefix(cfg.Storage.PublicBaseURL, "/") {
		r.Static(cfg.Storage.PublicBaseURL, cfg.Storage.LocalDir)
	}

	routes.SetupRoutes(r,
		middleware.Auth(verifier, market, cfg.Auth.TrustUserHeader),
		middleware.RequireAdmin(),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 3. サーバーと期限切れ処理を同じライフサイクルで動かす
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed to run: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Sweeper.Enabled {
		g.Go(func() error {
			return market.RunSweeper(gctx, cfg.Sweeper.Interval)
		})
	}
	return g.Wait()
}
