package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recorte/internal/app"
	"recorte/internal/config"
	"recorte/internal/handlers"
	"recorte/internal/version"
	"recorte/internal/worker"

	"github.com/hashicorp/go-hclog"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	// .envと環境変数から設定を読み込み
	cfg := config.Load()
	logger := app.NewLogger(cfg)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Trimmer.VerifyInstalled(ctx); err != nil {
		logger.Warn("ffmpeg is not available, trims will fail", "err", err)
	}

	// 前回の実行中に止まったジョブをキューに戻す
	if _, err := a.Service.Recover(ctx); err != nil {
		logger.Error("failed to recover interrupted jobs", "err", err)
	}

	// ワーカーの起動
	w := worker.NewWorker(a.Jobs, a.Service.Process, logger)
	w.SetConcurrency(cfg.Worker.Concurrency)
	w.SetInterval(cfg.Worker.PollInterval)
	w.Start(ctx)

	// Echoインスタンスの作成
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// ミドルウェアの設定
	accessLog := logger.Named("http").StandardWriter(&hclog.StandardLoggerOptions{ForceLevel: hclog.Info})
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{Output: accessLog}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// ルートの登録
	handlers.Register(e,
		handlers.NewAPIHandler(a.Service, logger),
		handlers.NewJobHandler(a.Service),
		handlers.NewHealthHandler(cfg.OutputDir, logger),
	)

	// サーバー起動
	go func() {
		logger.Info("starting recorte", "version", version.Version, "port", cfg.Port,
			"workers", cfg.Worker.Concurrency, "max_pending", cfg.Worker.MaxPending)
		if err := e.Start(fmt.Sprintf(":%s", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down server", "err", err)
	}
	w.Stop()
}
