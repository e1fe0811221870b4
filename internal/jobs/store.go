package jobs

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrJobNotFound は指定されたジョブが存在しないことを表します。
	ErrJobNotFound = errors.New("job not found")
	// ErrAlreadyTerminal は最終結果がすでに書き込まれていることを表します。
	ErrAlreadyTerminal = errors.New("job already has a terminal record")
)

// Store はジョブ状態を保存するキーバリューストアです。
// 1つのジョブの進捗と最終結果を書き込むのはそのジョブのワーカーだけです。
type Store interface {
	// CreateJob はアップロード時のジョブ情報を保存します。
	CreateJob(ctx context.Context, job *Job) error
	// GetJob はジョブ情報を返します。存在しない場合は ErrJobNotFound です。
	GetJob(ctx context.Context, jobID string) (*Job, error)
	// ClaimDispatch はジョブごとに一度だけ true を返します。
	ClaimDispatch(ctx context.Context, jobID string) (bool, error)
	// ReleaseDispatch はスケジュールに失敗したときに ClaimDispatch を取り消します。
	ReleaseDispatch(ctx context.Context, jobID string) error
	// PutProgress は進捗を上書きします。ジョブが無くてもエラーにしません。
	PutProgress(ctx context.Context, jobID string, fraction float64) error
	// PutResult は最終結果を原子的に公開します。2回目以降は ErrAlreadyTerminal です。
	PutResult(ctx context.Context, jobID string, record *TerminalRecord) error
	// ClearProgress は進捗を削除します（ベストエフォート）。
	ClearProgress(ctx context.Context, jobID string) error
	// GetState は現在の状態を返します。存在しない場合は ErrJobNotFound です。
	GetState(ctx context.Context, jobID string) (State, error)
	// DeleteJob はジョブに関する記録をすべて削除します。
	DeleteJob(ctx context.Context, jobID string) error
}

// safeID はファイルパスやキーに使って問題ないIDかを判定します。
func safeID(jobID string) bool {
	if jobID == "" || jobID == "." || jobID == ".." {
		return false
	}
	return !strings.ContainsAny(jobID, "/\\:\x00")
}
