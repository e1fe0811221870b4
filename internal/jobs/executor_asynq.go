package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeTranscribe は文字起こしタスクの種別です。
	TaskTypeTranscribe = "transcribe:run"

	transcribeQueue = "transcribe"
	// asynq は未指定だと30分でタスクを打ち切るため、長時間の音声でも切れない値にします。
	taskTimeout = 24 * time.Hour
)

// TaskPayload は文字起こしタスクのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// AsynqExecutor は Redis 上の asynq キュー経由でジョブを実行します。
// タスクIDにジョブIDを使うため、同じジョブが二重に投入されることはありません。
type AsynqExecutor struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	run    RunFunc
	logger *slog.Logger
}

// NewAsynqExecutor は AsynqExecutor を初期化します。
func NewAsynqExecutor(redisURL string, concurrency int, run RunFunc, logger *slog.Logger) (*AsynqExecutor, error) {
	if run == nil {
		return nil, errors.New("run func is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				transcribeQueue: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	executor := &AsynqExecutor{
		client: client,
		server: server,
		mux:    mux,
		run:    run,
		logger: logger,
	}
	mux.HandleFunc(TaskTypeTranscribe, executor.handleTranscribeTask)
	return executor, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (e *AsynqExecutor) StartWorkers() {
	go func() {
		if err := e.server.Run(e.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			e.logger.Error("asynq server stopped with error", "error", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (e *AsynqExecutor) Shutdown(ctx context.Context) error {
	e.server.Shutdown()
	return e.client.Close()
}

// Execute はジョブをキューに投入します。すでに投入済みなら何もしません。
func (e *AsynqExecutor) Execute(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	body, err := json.Marshal(&TaskPayload{JobID: jobID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeTranscribe, body, asynq.Queue(transcribeQueue))
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.TaskID(jobID),
		asynq.MaxRetry(0),
		asynq.Timeout(taskTimeout),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			e.logger.Info("task already enqueued", "job_id", jobID)
			return nil
		}
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	e.logger.Info("task enqueued", "job_id", jobID, "task_id", info.ID, "queue", info.Queue)
	return nil
}

// handleTranscribeTask はワーカーの失敗を最終結果として記録するため、常に nil を返します。
// ジョブは取り消せないので、サーバー停止時のタスクコンテキストのキャンセルは伝えません。
func (e *AsynqExecutor) handleTranscribeTask(ctx context.Context, task *asynq.Task) error {
	payload, err := decodeTaskPayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	e.run(context.WithoutCancel(ctx), payload.JobID)
	return nil
}

func decodeTaskPayload(body []byte) (*TaskPayload, error) {
	var payload TaskPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.JobID == "" {
		return nil, fmt.Errorf("missing jobId in payload")
	}
	return &payload, nil
}
