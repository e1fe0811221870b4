// Package jobs は文字起こしジョブの受付・実行・状態管理を提供します。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ryu655/voiceshape-clean/internal/media"
	"github.com/ryu655/voiceshape-clean/internal/storage"
)

// ErrInvalidSubmission はアップロード内容が不正であることを表します。
var ErrInvalidSubmission = errors.New("invalid submission")

// Options は Manager の動作設定です。
type Options struct {
	// DurationThreshold を超える音声は確認待ちになります。0以下で無効です。
	DurationThreshold float64
	DefaultLanguage   string
	MaxFileSize       int64
}

// Deps は Manager が利用するコンポーネントです。
type Deps struct {
	Store    Store
	Uploads  *storage.Local
	Prober   media.Prober
	Executor Executor
	Logger   *slog.Logger
}

// Submission は受け付けたアップロードです。
type Submission struct {
	Filename string
	Body     io.Reader
	Language string
}

// SubmitOutcome はアップロード受付の結果です。
type SubmitOutcome struct {
	JobID             string
	NeedsConfirmation bool
	Dispatched        bool
	Duration          *float64
}

// Manager はジョブの受付とディスパッチを担います。
type Manager struct {
	store    Store
	uploads  *storage.Local
	prober   media.Prober
	executor Executor
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager は Manager を初期化します。
func NewManager(deps Deps, opts Options) (*Manager, error) {
	if deps.Store == nil {
		return nil, errors.New("store is nil")
	}
	if deps.Uploads == nil {
		return nil, errors.New("uploads is nil")
	}
	if deps.Prober == nil {
		return nil, errors.New("prober is nil")
	}
	if deps.Executor == nil {
		return nil, errors.New("executor is nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    deps.Store,
		uploads:  deps.Uploads,
		prober:   deps.Prober,
		executor: deps.Executor,
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Submit はアップロードを保存してジョブを作成します。
// 確認が不要な場合はそのままディスパッチします。
func (m *Manager) Submit(ctx context.Context, sub Submission) (*SubmitOutcome, error) {
	filename := strings.TrimSpace(sub.Filename)
	if filename == "" || sub.Body == nil {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidSubmission)
	}

	jobID := uuid.NewString()
	logger := m.logger.With("job_id", jobID)

	stored, err := m.uploads.Save(ctx, jobID, filename, sub.Body, m.opts.MaxFileSize)
	if err != nil {
		m.discard(jobID, logger)
		return nil, err
	}

	duration := m.probe(ctx, stored.Path, logger)
	needsConfirmation := m.requiresConfirmation(duration)

	language := strings.TrimSpace(sub.Language)
	if language == "" {
		language = m.opts.DefaultLanguage
	}

	job := &Job{
		ID:                jobID,
		Filename:          filename,
		UploadPath:        stored.Path,
		ContentType:       media.DetectContentType(stored.Path),
		Size:              stored.Size,
		Language:          language,
		DurationSeconds:   duration,
		NeedsConfirmation: needsConfirmation,
		CreatedAt:         m.now(),
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		m.discard(jobID, logger)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	logger.Info("upload accepted",
		"filename", filename,
		"size", stored.Size,
		"content_type", job.ContentType,
		"needs_confirmation", needsConfirmation)

	outcome := &SubmitOutcome{
		JobID:             jobID,
		NeedsConfirmation: needsConfirmation,
		Duration:          duration,
	}
	if !needsConfirmation {
		dispatched, err := m.dispatch(ctx, jobID)
		if err != nil {
			m.discard(jobID, logger)
			return nil, err
		}
		outcome.Dispatched = dispatched
	}
	return outcome, nil
}

// Confirm は確認待ちのジョブをディスパッチします。
// 2回目以降の呼び出しは何もせず false を返します。
func (m *Manager) Confirm(ctx context.Context, jobID string) (bool, error) {
	if !ValidJobID(jobID) {
		return false, ErrJobNotFound
	}
	if _, err := m.store.GetJob(ctx, jobID); err != nil {
		return false, err
	}
	return m.dispatch(ctx, jobID)
}

// Status はジョブの状態をレスポンス形式で返します。
// 存在しないジョブは StatusNotFound のビューになります。
func (m *Manager) Status(ctx context.Context, jobID string) (*StatusView, error) {
	if !ValidJobID(jobID) {
		return NotFoundView(), nil
	}
	state, err := m.store.GetState(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return NotFoundView(), nil
		}
		return nil, err
	}
	return ViewFromState(state), nil
}

// Discard はジョブの記録とアップロードを削除します。
func (m *Manager) Discard(ctx context.Context, jobID string) error {
	if !ValidJobID(jobID) {
		return ErrJobNotFound
	}
	return errors.Join(m.store.DeleteJob(ctx, jobID), m.uploads.Remove(jobID))
}

// ValidJobID はジョブIDが UUID 形式かどうかを返します。
func ValidJobID(jobID string) bool {
	_, err := uuid.Parse(jobID)
	return err == nil && len(jobID) == 36
}

func (m *Manager) dispatch(ctx context.Context, jobID string) (bool, error) {
	claimed, err := m.store.ClaimDispatch(ctx, jobID)
	if err != nil {
		return false, err
	}
	if !claimed {
		m.logger.Info("job already dispatched", "job_id", jobID)
		return false, nil
	}
	if err := m.executor.Execute(ctx, jobID); err != nil {
		if releaseErr := m.store.ReleaseDispatch(ctx, jobID); releaseErr != nil {
			m.logger.Warn("failed to release dispatch claim", "job_id", jobID, "error", releaseErr)
		}
		return false, fmt.Errorf("failed to schedule job: %w", err)
	}
	m.logger.Info("job dispatched", "job_id", jobID)
	return true, nil
}

func (m *Manager) probe(ctx context.Context, path string, logger *slog.Logger) *float64 {
	seconds, err := m.prober.Duration(ctx, path)
	if err != nil {
		logger.Warn("failed to probe duration", "error", err)
		return nil
	}
	return &seconds
}

// requiresConfirmation は長さが不明な場合も、判定が有効なら確認待ちにします。
func (m *Manager) requiresConfirmation(duration *float64) bool {
	if m.opts.DurationThreshold <= 0 {
		return false
	}
	if duration == nil {
		return true
	}
	return *duration > m.opts.DurationThreshold
}

func (m *Manager) discard(jobID string, logger *slog.Logger) {
	ctx := context.Background()
	if err := m.store.DeleteJob(ctx, jobID); err != nil {
		logger.Warn("failed to delete job record", "error", err)
	}
	if err := m.uploads.Remove(jobID); err != nil {
		logger.Warn("failed to remove upload", "error", err)
	}
}
