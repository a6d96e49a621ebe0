package main

import (
	"fmt"
	"log"

	"carelink/config"
	"carelink/internal/token"
	"carelink/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	defer func() { _ = l.Logger.Sync() }()

	if cfg.MediaAppID == "" {
		log.Fatalf("MEDIA_APP_ID is required to issue channel tokens")
	}

	if cfg.AppMode == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	token.NewIssuer(cfg.MediaAppID, cfg.JWTSecret).RegisterRoutes(r)

	port := cfg.AppPort
	l.Infof("Starting token issuer on port %s", port)
	if err := r.Run(fmt.Sprintf(":%s", port)); err != nil {
		log.Fatalf("Failed to start token issuer: %v", err)
	}
}
