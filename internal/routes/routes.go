package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"payout-reconciliation-backend/internal/config"
	handler "payout-reconciliation-backend/internal/handlers"
	"payout-reconciliation-backend/internal/repository"
	"payout-reconciliation-backend/internal/services/ingest"
	"payout-reconciliation-backend/internal/services/reconciliation"
	"payout-reconciliation-backend/pkg/logger"
)

// RegisterRoutes wires repositories, services and handlers onto the engine.
// The reconciliation service is returned so main can drive the periodic
// trigger against the same instance.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config, log *logger.Logger) *reconciliation.Service {
	payoutRepo := repository.NewPayoutRepository(db)
	transactionRepo := repository.NewBankTransactionRepository(db)
	connectionRepo := repository.NewBankConnectionRepository(db)

	reconService := reconciliation.NewService(payoutRepo, transactionRepo, log)
	ingestService := ingest.NewService(payoutRepo, transactionRepo, connectionRepo, cfg.Reconcile.MinPayoutAmount, log)

	reconHandler := handler.NewReconciliationHandler(reconService)
	payoutHandler := handler.NewPayoutHandler(ingestService, reconService, payoutRepo)
	transactionHandler := handler.NewTransactionHandler(ingestService, reconService, transactionRepo)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Payout feed routes
	payouts := api.Group("/payouts")
	payouts.POST("/events", payoutHandler.IngestEvent)
	payouts.GET("", payoutHandler.List)
	payouts.POST("/:id/promote", payoutHandler.Promote)

	// Bank connection and transaction routes
	api.POST("/connections", transactionHandler.RegisterConnection)

	tx := api.Group("/transactions")
	tx.POST("/sync", transactionHandler.Sync)
	tx.GET("", transactionHandler.List)

	// Reconciliation routes
	recon := api.Group("/reconciliation")
	recon.POST("/run", reconHandler.Run)
	recon.POST("/manual", reconHandler.ManualReconcile)

	// Dashboard
	api.GET("/dashboard/stats", reconHandler.Stats)

	return reconService
}
