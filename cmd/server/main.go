package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/koopa0/system-design/game-relay/internal/config"
	"github.com/koopa0/system-design/game-relay/internal/events"
	"github.com/koopa0/system-design/game-relay/internal/handler"
	"github.com/koopa0/system-design/game-relay/internal/room"
	"github.com/koopa0/system-design/game-relay/internal/session"
	"github.com/koopa0/system-design/game-relay/internal/ws"
	"github.com/koopa0/system-design/game-relay/pkg/logger"
)

func main() {
	// 解析命令行參數（非空時覆蓋配置檔）
	var (
		configPath = flag.String("config", "", "配置檔路徑 (YAML)")
		port       = flag.Int("port", 0, "服務器端口")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("載入配置失敗", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("服務器異常退出", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	// 事件發布
	pub, err := events.NewPublisher(cfg.Events)
	if err != nil {
		return err
	}
	dispatcher := events.NewDispatcher(pub, 1024, log)

	// 房間與過期
	registry := room.NewRegistry()
	expiry := room.NewExpiry(registry, room.Policy{
		Empty:       cfg.Expiry.Empty,
		OneOccupant: cfg.Expiry.OneOccupant,
		TwoOccupant: cfg.Expiry.TwoOccupant,
	}, log)

	coordinator := session.NewCoordinator(registry, expiry, dispatcher, log, session.Options{
		BestEffortTypes: cfg.Relay.BestEffortTypes,
		RateCapacity:    cfg.Relay.RateCapacity,
		RateRefill:      cfg.Relay.RateRefill,
	})

	hub := ws.NewHub(coordinator, ws.Settings{
		SendBuffer:     cfg.Relay.SendBuffer,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
		WriteWait:      cfg.Relay.WriteWait,
		PingInterval:   cfg.Relay.PingInterval,
		PongWait:       cfg.Relay.PongWait,
	}, cfg.Server.AllowedOrigins, log)

	// 設置路由
	mux := handler.NewHandler(coordinator, log).Routes()
	mux.HandleFunc("GET /ws", hub.ServeWS)
	mux.HandleFunc("GET /ws/rooms/{room_id}", hub.ServeWS)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("遊戲中繼服務器啟動",
			"addr", server.Addr,
			"events_driver", cfg.Events.Driver,
			"log_level", cfg.Log.Level)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("收到關閉信號，開始優雅關閉...", "signal", sig.String())
	case err := <-errCh:
		expiry.Close()
		_ = dispatcher.Close()
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接受新連接（已升級的 WebSocket 不受 Shutdown 管理）
	if err := server.Shutdown(ctx); err != nil {
		log.Error("服務器關閉失敗", "error", err)
	}

	// 以 1001 關閉所有房間的連接，再等讀寫 goroutine 結束
	expiry.Close()
	if err := hub.Wait(ctx); err != nil {
		log.Warn("等待 WebSocket 連接結束逾時", "error", err)
	}

	// 最後送出剩餘的生命週期事件
	if err := dispatcher.Close(); err != nil {
		log.Error("關閉事件發布失敗", "error", err)
	}

	log.Info("服務器已關閉")
	return nil
}
