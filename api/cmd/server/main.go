package main

import (
	"context"
	"log"
	"net/http"

	"go.uber.org/zap"

	"mediaTranscode/api/cache"
	"mediaTranscode/api/config"
	"mediaTranscode/api/database"
	"mediaTranscode/api/handlers"
	"mediaTranscode/api/kafka"
	"mediaTranscode/api/middleware"
	"mediaTranscode/api/repository"
	"mediaTranscode/api/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	ctx := context.Background()

	logger.Info("API Service starting", zap.String("port", cfg.Port))

	db, err := database.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisCache, err := database.ConnectCache(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisCache.Close()

	producer, err := kafka.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		logger.Fatal("Failed to create kafka producer", zap.Error(err))
	}
	defer producer.Close()

	repo := repository.NewPostgresRepo(db)
	statusCache := cache.NewStatusCache(redisCache)
	notifier := service.NewNotifier(3, logger)
	dispatcher := service.NewDispatcher(producer, repo, notifier, cfg.KafkaTopic, logger)
	taskService := service.NewTaskService(repo, statusCache, dispatcher, logger)
	taskHandler := handlers.NewTaskHandler(taskService, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/tasks", taskHandler.Submit)
	mux.HandleFunc("/status/", taskHandler.Status)
	mux.HandleFunc("/cancel/", taskHandler.Cancel)

	handler := middleware.TraceID(
		middleware.Logging(logger)(
			middleware.Recovery(logger)(mux),
		),
	)

	logger.Info("Server started", zap.String("address", ":"+cfg.Port))
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}
