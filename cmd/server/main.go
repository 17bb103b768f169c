// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lexflow/intake-backend/internal/config"
	"github.com/lexflow/intake-backend/internal/database"
	"github.com/lexflow/intake-backend/internal/jobs"
	"github.com/lexflow/intake-backend/internal/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Seed the issue taxonomy
	if err := database.SeedTaxonomy(db); err != nil {
		log.Fatal("Failed to seed taxonomy:", err)
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Wire services and router
	svcs, err := router.BuildServices(db, cfg)
	if err != nil {
		log.Fatal("Failed to build services:", err)
	}
	r := router.Initialize(svcs, cfg)

	// Start the generation worker pool
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	pool := jobs.NewWorkerPool(
		svcs.Queue,
		svcs.Documents,
		jobs.ClaimPolicy{
			MaxAttempts:  cfg.Pipeline.MaxJobAttempts,
			RetryDelay:   time.Duration(cfg.Pipeline.JobRetryDelay) * time.Second,
			StaleRunning: time.Duration(cfg.Pipeline.StaleJobAfter) * time.Second,
		},
		cfg.Pipeline.WorkerCount,
		time.Duration(cfg.Pipeline.PollInterval)*time.Second,
	)
	pool.Start(workerCtx)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop taking new work, let in-flight jobs wind down cooperatively
	stopWorkers()
	pool.Wait()

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown server
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
