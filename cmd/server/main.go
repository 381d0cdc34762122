package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/wxcloudrun/internal/config"
	"github.com/wxcloudrun/internal/db"
	"github.com/wxcloudrun/internal/handler"
	"github.com/wxcloudrun/internal/router"
	"github.com/wxcloudrun/internal/service"
	"github.com/wxcloudrun/internal/view"
	"gorm.io/gorm"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	configureLogging(cfg)

	log.WithFields(log.Fields{
		"listen_addr":     cfg.ListenAddr,
		"database_driver": cfg.DatabaseDriver,
		"mysql_dsn":       cfg.MySQL.DSNMasked(),
		"wechat_api_base": cfg.WeChat.APIBase,
		"attach_token":    cfg.WeChat.AttachToken,
		"appid_set":       cfg.WeChat.AppID != "",
	}).Info("configuration loaded")

	// 初始化计数器存储
	var (
		gdb      *gorm.DB
		counters service.CounterStore
	)
	if cfg.DatabaseDriver == config.DriverMemory {
		counters = service.NewMemoryCounterStore()
	} else {
		gdb, err = db.Open(cfg)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize database")
		}
		defer db.Close(gdb)
		counters = service.NewCounterService(gdb)
	}

	wechat := service.NewWeChatService(cfg.WeChat, service.NewWeChatClient(cfg.WeChat.APIBase))

	landing, err := view.RenderLanding(cfg.SiteTitle)
	if err != nil {
		log.WithError(err).Fatal("failed to render landing page")
	}

	gin.SetMode(cfg.GinMode)
	api := handler.NewAPI(gdb, counters, wechat, landing)
	r := router.SetupRouter(api)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("starting http server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	// 优雅退出
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown")
	} else {
		log.Info("server stopped")
	}
}

func configureLogging(cfg config.AppConfig) {
	if strings.EqualFold(cfg.LogFormat, "text") {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("log_level", cfg.LogLevel).Warn("unknown log level, falling back to info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
