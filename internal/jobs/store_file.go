package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	jobFileName      = "job.json"
	progressFileName = "progress.json"
	resultFileName   = "result.json"
	dispatchFileName = "dispatched"
)

// FileStore はジョブ状態をファイルとして保存します。
//
// レイアウト:
//
//	<root>/<jobID>/job.json       ジョブ情報
//	<root>/<jobID>/progress.json  進捗（一時ファイル + rename で上書き）
//	<root>/<jobID>/result.json    最終結果（一時ファイル + link で一度だけ公開）
//	<root>/<jobID>/dispatched     ディスパッチ済みマーカー（O_EXCL で作成）
//
// アップロード本体も同じディレクトリに置かれます（storage.Local）。
type FileStore struct {
	root string
}

type progressFile struct {
	Progress  float64   `json:"progress"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewFileStore はルートディレクトリを作成して FileStore を返します。
func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) CreateJob(_ context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	dir, err := s.jobDir(job.ID)
	if err != nil {
		return err
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create job dir: %w", err)
	}
	return writeJSONAtomic(filepath.Join(dir, jobFileName), job)
}

func (s *FileStore) GetJob(_ context.Context, jobID string) (*Job, error) {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return nil, ErrJobNotFound
	}
	var job Job
	found, err := readJSON(filepath.Join(dir, jobFileName), &job)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *FileStore) ClaimDispatch(ctx context.Context, jobID string) (bool, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return false, err
	}
	dir, _ := s.jobDir(jobID)
	f, err := os.OpenFile(filepath.Join(dir, dispatchFileName), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create dispatch marker: %w", err)
	}
	_, _ = f.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	return true, f.Close()
}

func (s *FileStore) ReleaseDispatch(_ context.Context, jobID string) error {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, dispatchFileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) PutProgress(_ context.Context, jobID string, fraction float64) error {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create job dir: %w", err)
	}
	return writeJSONAtomic(filepath.Join(dir, progressFileName), progressFile{
		Progress:  clampFraction(fraction),
		UpdatedAt: time.Now().UTC(),
	})
}

// PutResult は一時ファイルをハードリンクで公開します。
// link は既存パスを上書きしないため、2回目の書き込みは ErrAlreadyTerminal になります。
func (s *FileStore) PutResult(_ context.Context, jobID string, record *TerminalRecord) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	dir, err := s.jobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create job dir: %w", err)
	}
	dest := filepath.Join(dir, resultFileName)

	tmpPath, err := writeTemp(dir, ".result-*", record)
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	err = os.Link(tmpPath, dest)
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrExist) {
		return ErrAlreadyTerminal
	}
	// ハードリンク非対応のファイルシステム向け
	if _, statErr := os.Stat(dest); statErr == nil {
		return ErrAlreadyTerminal
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}
	return nil
}

func (s *FileStore) ClearProgress(_ context.Context, jobID string) error {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, progressFileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) GetState(ctx context.Context, jobID string) (State, error) {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return State{}, ErrJobNotFound
	}

	var record TerminalRecord
	found, err := readJSON(filepath.Join(dir, resultFileName), &record)
	if err != nil {
		return State{}, err
	}
	if found {
		return resolveState(&record, nil, true)
	}

	var progress progressFile
	found, err = readJSON(filepath.Join(dir, progressFileName), &progress)
	if err != nil {
		return State{}, err
	}
	if found {
		return resolveState(nil, &progress.Progress, true)
	}

	return resolveState(nil, nil, s.uploadExists(ctx, jobID))
}

func (s *FileStore) DeleteJob(_ context.Context, jobID string) error {
	dir, err := s.jobDir(jobID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (s *FileStore) uploadExists(ctx context.Context, jobID string) bool {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return false
	}
	return uploadPresent(job)
}

func (s *FileStore) jobDir(jobID string) (string, error) {
	if !safeID(jobID) {
		return "", fmt.Errorf("invalid job id: %q", jobID)
	}
	return filepath.Join(s.root, jobID), nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSONAtomic(path string, v any) error {
	tmpPath, err := writeTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*", v)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeTemp(dir, pattern string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return tmp.Name(), nil
}
