package jobs

import (
	"context"
	"errors"
	"sync"
)

// RunFunc は1件のジョブを最後まで実行する関数です（通常は Worker.Run）。
type RunFunc func(ctx context.Context, jobID string)

// Executor はジョブを呼び出し元から切り離して実行します。
// Execute はスケジュールできた時点で戻り、完了を待ちません。
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}

// GoExecutor はジョブごとに goroutine を起動するプロセス内エグゼキューターです。
// concurrency が0より大きい場合、同時実行数をその値に制限します。
type GoExecutor struct {
	run RunFunc
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewGoExecutor は GoExecutor を作成します。
func NewGoExecutor(run RunFunc, concurrency int) (*GoExecutor, error) {
	if run == nil {
		return nil, errors.New("run func is nil")
	}
	e := &GoExecutor{run: run}
	if concurrency > 0 {
		e.sem = make(chan struct{}, concurrency)
	}
	return e, nil
}

// Execute はリクエストのキャンセルを引き継がずにジョブを開始します。
func (e *GoExecutor) Execute(ctx context.Context, jobID string) error {
	jobCtx := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if e.sem != nil {
			e.sem <- struct{}{}
			defer func() { <-e.sem }()
		}
		e.run(jobCtx, jobID)
	}()
	return nil
}

// Wait は実行中のジョブがすべて終わるまで待ちます。
func (e *GoExecutor) Wait() {
	e.wg.Wait()
}

// Shutdown は ctx の期限まで実行中のジョブを待ちます。
func (e *GoExecutor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
