package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"carelink/config"
	"carelink/internal/handler"
	"carelink/internal/history"
	"carelink/internal/redisstore"
	"carelink/internal/server"
	"carelink/internal/signaling"
	"carelink/pkg/database"
	"carelink/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	defer func() { _ = l.Logger.Sync() }()

	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	redisClient := redisstore.NewClient(redisstore.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	callStore := redisstore.NewCallStore(redisClient, time.Duration(cfg.CallRecordTTLHrs)*time.Hour, l)

	historyService := history.NewService(history.NewPostgresRepository(pool), l)
	signalingService := signaling.NewService(callStore, historyService, l)

	callHandler := handler.NewCallHandler(signalingService, historyService)
	incomingPusher := server.NewIncomingPusher(signalingService, l)

	if cfg.AppMode == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	registerRoutes(r, cfg, callHandler, incomingPusher)

	l.Infof("Starting signaling gateway on port %s", cfg.AppPort)
	if err := r.Run(fmt.Sprintf(":%s", cfg.AppPort)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
