package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fastsplits/xc-engine/internal/api/handlers"
	"github.com/fastsplits/xc-engine/internal/config"
	"github.com/fastsplits/xc-engine/internal/repository"
	"github.com/fastsplits/xc-engine/internal/services"
	"github.com/fastsplits/xc-engine/internal/websocket"
	"github.com/fastsplits/xc-engine/pkg/database"
	"github.com/fastsplits/xc-engine/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger("", cfg.IsDevelopment())
	logger.WithService("xc-engine").WithFields(logrus.Fields{
		"environment": cfg.Env,
		"port":        cfg.Port,
	}).Info("Starting XC engine")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logger.WithService("xc-engine").Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.WithService("xc-engine").Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.WithService("xc-engine").Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Core services
	store := repository.NewGormStore(db.DB, structuredLogger)
	cacheService := services.NewCacheService(redisClient, structuredLogger)
	statsTTL := time.Duration(cfg.StatsCacheExpiration) * time.Second
	analyzer := services.NewCourseAnalyzer(store, cacheService, statsTTL, structuredLogger)
	calibrator := services.NewAnchorCalibrator(store, cacheService, statsTTL, structuredLogger)
	scoring := services.NewScoringService(store, structuredLogger)

	// Lifecycle events stream to connected admin clients
	wsHub := websocket.NewLifecycleHub(structuredLogger)
	go wsHub.Run()

	lifecycle := services.NewLifecycleManager(store, cacheService, wsHub, structuredLogger)

	var annotation *services.AnnotationService
	if cfg.ClaudeAPIKey != "" {
		annotation = services.NewAnnotationService(cfg, cacheService, lifecycle, structuredLogger)
	} else {
		logger.WithService("xc-engine").Info("No annotation API key configured, annotation source disabled")
	}

	// Scheduled recalibration sweep
	var scheduler *services.CalibrationScheduler
	if anchorID, err := uuid.Parse(cfg.DefaultAnchorCourseID); err == nil {
		scheduler = services.NewCalibrationScheduler(store, analyzer, calibrator, lifecycle,
			anchorID, cfg.RecalibrationSchedule, structuredLogger)
		if err := scheduler.Start(); err != nil {
			logger.WithService("xc-engine").Fatalf("Failed to start recalibration scheduler: %v", err)
		}
		defer scheduler.Stop()
	} else {
		logger.WithService("xc-engine").Info("No anchor course configured, recalibration sweep disabled")
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	analysisHandler := handlers.NewAnalysisHandler(analyzer, calibrator, lifecycle, cfg, structuredLogger)
	recommendationHandler := handlers.NewRecommendationHandler(lifecycle, annotation, analyzer, cfg, structuredLogger)
	scoringHandler := handlers.NewScoringHandler(scoring, structuredLogger)
	healthHandler := handlers.NewHealthHandler(db, redisClient, annotation, structuredLogger)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/courses/:id/statistics", analysisHandler.GetCourseStatistics)
		apiV1.POST("/courses/:id/calibrate", analysisHandler.CalibrateCourse)
		apiV1.POST("/courses/:id/recalibrate", analysisHandler.RecalibrateCourse)
		apiV1.POST("/courses/:id/annotate", recommendationHandler.AnnotateCourse)
		apiV1.PUT("/courses/:id/difficulty", recommendationHandler.OverrideDifficulty)
		apiV1.GET("/courses/:id/team-performances", scoringHandler.TopTeamPerformances)

		apiV1.GET("/recommendations", recommendationHandler.ListPending)
		apiV1.GET("/recommendations/history", recommendationHandler.ListHistory)
		apiV1.POST("/recommendations/:id/apply", recommendationHandler.Apply)
		apiV1.POST("/recommendations/:id/dismiss", recommendationHandler.Dismiss)

		apiV1.GET("/project", scoringHandler.ProjectTime)
		apiV1.POST("/meets/score", scoringHandler.ScoreMeet)
	}

	router.GET("/ws/recommendations", wsHub.HandleWebSocket)

	router.GET("/health", healthHandler.GetHealth)
	router.HEAD("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)
	router.HEAD("/ready", healthHandler.GetReady)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.WithService("xc-engine").WithField("port", cfg.Port).Info("XC engine started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithService("xc-engine").Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.WithService("xc-engine").Info("Shutting down XC engine...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithService("xc-engine").Fatalf("XC engine forced to shutdown: %v", err)
	}

	logger.WithService("xc-engine").Info("XC engine exited")
}
