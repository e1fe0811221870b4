package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ryu655/voiceshape-clean/internal/transcribe"
)

// エラーメッセージが空のときに記録する文言
const defaultFailureMessage = "transcription failed"

// ProgressReporter は進捗（0〜1）をストアへ書き込みます。書き込み失敗は処理を止めません。
type ProgressReporter func(fraction float64)

// Worker は1件のジョブを実行し、必ず最終結果を書き込みます。
type Worker struct {
	store  Store
	engine transcribe.Engine
	logger *slog.Logger
	now    func() time.Time
}

// NewWorker は Worker を作成します。
func NewWorker(store Store, engine transcribe.Engine, logger *slog.Logger) (*Worker, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:  store,
		engine: engine,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run はジョブを実行します。
//
// 進捗は 0.0 → 0.7（文字起こし完了）→ 1.0 と進み、成功時は完了記録、
// エラーやパニック時は失敗記録を書き込んでから進捗を削除します。
// 最終結果の書き込みに失敗した場合は進捗を残したままにします。
func (w *Worker) Run(ctx context.Context, jobID string) {
	logger := w.logger.With("job_id", jobID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker crashed outside transcription", "panic", r)
		}
	}()

	report := w.reporter(ctx, jobID, logger)
	report(ProgressStarted)
	logger.Info("transcription started")

	started := time.Now()
	result, err := w.transcribe(ctx, jobID, report)

	record := &TerminalRecord{FinishedAt: w.now()}
	if err != nil {
		logger.Error("transcription failed", "error", err)
		record.Error = failureMessage(err.Error())
	} else {
		report(ProgressFinished)
		record.Result = result
	}

	if err := w.store.PutResult(ctx, jobID, record); err != nil {
		if errors.Is(err, ErrAlreadyTerminal) {
			logger.Warn("terminal record already exists")
		} else {
			logger.Error("failed to write terminal record", "error", err)
			return
		}
	}
	if err := w.store.ClearProgress(ctx, jobID); err != nil {
		logger.Warn("failed to clear progress", "error", err)
	}
	logger.Info("transcription finished",
		"failed", record.Failed(),
		"elapsed", time.Since(started).Round(time.Millisecond).String())
}

func (w *Worker) transcribe(ctx context.Context, jobID string, report ProgressReporter) (result *transcribe.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()

	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	out, err := w.engine.Transcribe(ctx, job.UploadPath, job.Language)
	if err != nil {
		return nil, err
	}
	report(ProgressTranscribed)

	result = transcribe.Normalize(out)
	if result.Duration <= 0 && job.DurationSeconds != nil {
		result.Duration = *job.DurationSeconds
	}
	if result.Language == "" {
		result.Language = job.Language
	}
	return result, nil
}

func failureMessage(msg string) string {
	if strings.TrimSpace(msg) == "" {
		return defaultFailureMessage
	}
	return msg
}

func (w *Worker) reporter(ctx context.Context, jobID string, logger *slog.Logger) ProgressReporter {
	return func(fraction float64) {
		if err := w.store.PutProgress(ctx, jobID, fraction); err != nil {
			logger.Warn("failed to update progress", "progress", fraction, "error", err)
		}
	}
}
