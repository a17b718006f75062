package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mediaTranscode/worker/cache"
	"mediaTranscode/worker/config"
	"mediaTranscode/worker/converter"
	"mediaTranscode/worker/downloader"
	"mediaTranscode/worker/kafka"
	"mediaTranscode/worker/pool"
	"mediaTranscode/worker/repository"
	"mediaTranscode/worker/service"
	"mediaTranscode/worker/uploader"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	logger.Info("Worker Service starting",
		zap.Int("worker_count", cfg.WorkerCount),
		zap.String("topic", cfg.KafkaTopic),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		logger.Fatal("Failed to create work dir", zap.Error(err))
	}

	repo := repository.NewPostgresRepo(db)
	statusCache := cache.NewStatusCache(redisClient)
	sources := downloader.NewSourceCache(cfg.WorkDir, logger)

	converters := map[string]converter.Converter{
		"image": converter.NewImageConverter(logger),
		"video": converter.NewFFmpegConverter(logger),
	}

	s3up := uploader.NewS3Uploader(cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey, logger)
	callbacks := service.NewCallbackDispatcher(repo, cfg.CallbackRetries, logger)
	aggregator := service.NewAggregator(repo, statusCache, callbacks, logger)

	var faces *service.FaceDetectionRunner
	if cfg.FaceDetectionURL != "" {
		detector := service.NewHTTPFaceDetector(cfg.FaceDetectionURL)
		faces = service.NewFaceDetectionRunner(detector, repo, 10*time.Second, logger)
	}

	processor := service.NewProcessor(
		repo,
		statusCache,
		sources,
		converters,
		s3up,
		aggregator,
		faces,
		cfg.WorkDir,
		time.Duration(cfg.ConvertTimeout)*time.Second,
		logger,
	)

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID)
	if err != nil {
		logger.Fatal("Failed to create kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	workers := pool.NewWorkerPool(cfg.WorkerCount)

	for ctx.Err() == nil {
		err := consumer.Consume(ctx, cfg.KafkaTopic, func(ctx context.Context, msg *kafka.ProfileTaskMessage) error {
			return workers.Submit(ctx, msg, processor.Process)
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("Consumer session ended", zap.Error(err))
			time.Sleep(time.Second)
		}
	}

	logger.Info("Shutting down, waiting for in-flight profiles")
	workers.Wait()
}
