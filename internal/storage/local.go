// Package storage はアップロードファイルのローカル保存を提供します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	uploadBaseName = "input"
	maxExtLen      = 10
)

// ErrTooLarge はアップロードがサイズ上限を超えたことを表します。
var ErrTooLarge = errors.New("upload exceeds size limit")

// StoredFile は保存済みアップロードの情報です。
type StoredFile struct {
	Path string
	Size int64
}

// Local はジョブIDごとのディレクトリにアップロードを保存します。
//
// レイアウト: <root>/<jobID>/input<ext>
type Local struct {
	root string
}

// NewLocal は保存先ディレクトリを作成して Local を返します。
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: root}, nil
}

// Root は保存先のルートディレクトリを返します。
func (l *Local) Root() string {
	return l.root
}

// JobDir はジョブ用ディレクトリのパスを返します。
func (l *Local) JobDir(jobID string) string {
	return filepath.Join(l.root, jobID)
}

// Save は src を一時ファイルに書き込んでから公開します。
// maxBytes が0より大きい場合、超過すると ErrTooLarge を返します。
func (l *Local) Save(ctx context.Context, jobID, filename string, src io.Reader, maxBytes int64) (*StoredFile, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return nil, fmt.Errorf("invalid job id: %q", jobID)
	}
	dir := l.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	reader := src
	if maxBytes > 0 {
		reader = io.LimitReader(src, maxBytes+1)
	}
	written, err := io.Copy(tmp, &contextReader{ctx: ctx, r: reader})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	if maxBytes > 0 && written > maxBytes {
		return nil, ErrTooLarge
	}

	dest := filepath.Join(dir, uploadBaseName+SafeExt(filename))
	if err := os.Rename(tmpPath, dest); err != nil {
		return nil, fmt.Errorf("failed to publish upload: %w", err)
	}
	return &StoredFile{Path: dest, Size: written}, nil
}

// Remove はジョブ用ディレクトリごと削除します。
func (l *Local) Remove(jobID string) error {
	if jobID == "" {
		return nil
	}
	return os.RemoveAll(l.JobDir(jobID))
}

// SafeExt は元ファイル名から英数字のみの拡張子を取り出します。
func SafeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
