package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/ryu655/voiceshape-clean/internal/config"
	"github.com/ryu655/voiceshape-clean/internal/jobs"
	"github.com/ryu655/voiceshape-clean/internal/media"
	"github.com/ryu655/voiceshape-clean/internal/storage"
	"github.com/ryu655/voiceshape-clean/internal/transcribe"
)

// shutdowner は実行中ジョブを待って停止できるエグゼキューターです。
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// jobServices はジョブ処理に必要なコンポーネントをまとめたものです。
type jobServices struct {
	manager  *jobs.Manager
	executor shutdowner
	redis    *redis.Client
}

// Shutdown はエグゼキューターを停止します。
func (s *jobServices) Shutdown(ctx context.Context) error {
	if s.executor == nil {
		return nil
	}
	return s.executor.Shutdown(ctx)
}

// Close は外部接続を閉じます。
func (s *jobServices) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

func setupJobs(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*jobServices, error) {
	services := &jobServices{}

	uploads, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	prober := media.NewProber(cfg.FFprobePath)

	store, err := setupStore(ctx, cfg, services)
	if err != nil {
		services.Close()
		return nil, err
	}

	engine, err := setupEngine(cfg, prober, logger)
	if err != nil {
		services.Close()
		return nil, err
	}

	worker, err := jobs.NewWorker(store, engine, logger.With("component", "worker"))
	if err != nil {
		services.Close()
		return nil, err
	}

	executor, err := setupExecutor(cfg, worker, logger)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.executor = executor

	manager, err := jobs.NewManager(jobs.Deps{
		Store:    store,
		Uploads:  uploads,
		Prober:   prober,
		Executor: executor,
		Logger:   logger.With("component", "jobs"),
	}, jobs.Options{
		DurationThreshold: cfg.DurationThresholdSeconds,
		DefaultLanguage:   cfg.DefaultLanguage,
		MaxFileSize:       cfg.MaxFileSize,
	})
	if err != nil {
		services.Close()
		return nil, err
	}
	services.manager = manager
	return services, nil
}

func setupStore(ctx context.Context, cfg *config.Config, services *jobServices) (jobs.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		rdb, err := jobs.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		services.redis = rdb
		ttl := time.Duration(cfg.JobExpireMinutes) * time.Minute
		return jobs.NewRedisStore(rdb, ttl), nil
	default:
		return jobs.NewFileStore(cfg.UploadDir)
	}
}

func setupEngine(cfg *config.Config, prober media.Prober, logger *slog.Logger) (transcribe.Engine, error) {
	switch cfg.Engine {
	case config.EngineWhisperCPP:
		return transcribe.NewWhisperCPPEngine(transcribe.WhisperCPPOptions{
			WhisperPath: cfg.WhisperPath,
			ModelPath:   cfg.WhisperModel,
			FFmpegPath:  cfg.FFmpegPath,
			Prober:      prober,
		}), nil
	case config.EngineRemote:
		if cfg.EngineURL == "" {
			logger.Warn("ENGINE_URL is not set; transcription jobs will fail")
		}
		return transcribe.NewRemoteEngine(cfg.EngineURL, time.Duration(cfg.EngineTimeoutSeconds)*time.Second), nil
	default:
		return nil, fmt.Errorf("unsupported engine: %s", cfg.Engine)
	}
}

type executorWithShutdown interface {
	jobs.Executor
	shutdowner
}

func setupExecutor(cfg *config.Config, worker *jobs.Worker, logger *slog.Logger) (executorWithShutdown, error) {
	switch cfg.Executor {
	case config.ExecutorAsynq:
		executor, err := jobs.NewAsynqExecutor(cfg.RedisURL, cfg.WorkerConcurrency, worker.Run, logger.With("component", "asynq"))
		if err != nil {
			return nil, err
		}
		executor.StartWorkers()
		return executor, nil
	case config.ExecutorGoroutine:
		return jobs.NewGoExecutor(worker.Run, cfg.WorkerConcurrency)
	default:
		return nil, errors.New("unsupported executor: " + cfg.Executor)
	}
}
