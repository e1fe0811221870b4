package jobs

import (
	"os"
	"time"

	"github.com/ryu655/voiceshape-clean/internal/transcribe"
)

// StateKind はジョブの実行状態を表します。
type StateKind string

const (
	StatePending    StateKind = "pending"
	StateInProgress StateKind = "in_progress"
	StateCompleted  StateKind = "completed"
	StateFailed     StateKind = "failed"
)

// 進捗の固定チェックポイント。エンジンは細かな進捗を報告しないため実測値ではありません。
const (
	ProgressStarted     = 0.0
	ProgressTranscribed = 0.7
	ProgressFinished    = 1.0
)

// Job はアップロード時に作成されるジョブ情報です。
type Job struct {
	ID                string    `json:"jobId"`
	Filename          string    `json:"filename"`
	UploadPath        string    `json:"uploadPath"`
	ContentType       string    `json:"contentType,omitempty"`
	Size              int64     `json:"size"`
	Language          string    `json:"language,omitempty"`
	DurationSeconds   *float64  `json:"durationSeconds,omitempty"`
	NeedsConfirmation bool      `json:"needsConfirmation"`
	CreatedAt         time.Time `json:"createdAt"`
}

// TerminalRecord はジョブの最終結果です。Result と Error のどちらか一方だけが設定されます。
type TerminalRecord struct {
	Result     *transcribe.Result `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`
	FinishedAt time.Time          `json:"finishedAt"`
}

// Failed は失敗記録かどうかを返します。
func (r *TerminalRecord) Failed() bool {
	return r != nil && r.Result == nil
}

// State はストアから読み出したジョブの現在状態です。
type State struct {
	Kind     StateKind
	Progress float64
	Result   *transcribe.Result
	Error    string
}

// Terminal は完了または失敗の状態かどうかを返します。
func (s State) Terminal() bool {
	return s.Kind == StateCompleted || s.Kind == StateFailed
}

// resolveState は「最終結果 > 進捗 > 待機中」の優先順位で状態を決めます。
// 最終結果の書き込みと進捗の削除の間に読まれても完了として見えるようにするためです。
func resolveState(record *TerminalRecord, progress *float64, jobExists bool) (State, error) {
	switch {
	case record != nil && record.Failed():
		return State{Kind: StateFailed, Progress: ProgressFinished, Error: record.Error}, nil
	case record != nil:
		return State{Kind: StateCompleted, Progress: ProgressFinished, Result: record.Result}, nil
	case progress != nil:
		return State{Kind: StateInProgress, Progress: clampFraction(*progress)}, nil
	case jobExists:
		return State{Kind: StatePending}, nil
	default:
		return State{}, ErrJobNotFound
	}
}

// uploadPresent はジョブが待機中として扱えるか（アップロードが残っているか）を返します。
func uploadPresent(job *Job) bool {
	if job == nil {
		return false
	}
	if job.UploadPath == "" {
		return true
	}
	_, err := os.Stat(job.UploadPath)
	return err == nil
}

func clampFraction(f float64) float64 {
	if f != f || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
