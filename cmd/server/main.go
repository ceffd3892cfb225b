package main

import (
	"context"
	"time"

	"payout-reconciliation-backend/internal/config"
	"payout-reconciliation-backend/internal/models"
	"payout-reconciliation-backend/internal/routes"
	"payout-reconciliation-backend/pkg/logger"
	"payout-reconciliation-backend/pkg/retry"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	log := logger.New(cfg.Logging.Level)
	defer log.Sync()

	ctx := context.Background()

	db := config.InitDB(cfg)

	db.AutoMigrate(
		&models.ExpectedPayout{},
		&models.BankTransaction{},
		&models.BankConnection{},
		&models.ManualMatchLog{},
	)

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	reconService := routes.RegisterRoutes(r, db, cfg, log)

	// Periodic trigger. Sync-triggered runs come through the HTTP surface;
	// concurrent runs are safe because landing commits are conditional.
	go func() {
		ticker := time.NewTicker(cfg.Reconcile.Interval)
		defer ticker.Stop()

		for range ticker.C {
			err := retry.Do(ctx, func() error {
				_, err := reconService.Run(ctx, "")
				return err
			}, retry.WithMaxAttempts(cfg.Reconcile.MaxRetries))
			if err != nil {
				log.Error(ctx, "scheduled reconciliation failed", "error", err)
			}
		}
	}()

	log.Info(ctx, "server starting", "port", cfg.Server.Port)

	r.Run(":" + cfg.Server.Port)
}
