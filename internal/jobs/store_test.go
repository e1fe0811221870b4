package jobs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryu655/voiceshape-clean/internal/transcribe"
)

// testStoreContract はすべての Store 実装に共通する振る舞いを検証します。
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("unknown job", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.GetState(ctx, "missing")
		assert.ErrorIs(t, err, ErrJobNotFound)
		_, err = store.GetJob(ctx, "missing")
		assert.ErrorIs(t, err, ErrJobNotFound)
		_, err = store.ClaimDispatch(ctx, "missing")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("pending then progress then completed", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		job := newTestJob(t)
		require.NoError(t, store.CreateJob(ctx, job))

		state, err := store.GetState(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StatePending, state.Kind)
		assert.Zero(t, state.Progress)

		require.NoError(t, store.PutProgress(ctx, job.ID, 0.7))
		state, err = store.GetState(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StateInProgress, state.Kind)
		assert.InDelta(t, 0.7, state.Progress, 1e-9)

		result := &transcribe.Result{
			Text:      "hello",
			Subtitles: []transcribe.Subtitle{{Start: "0:00:00", End: "0:00:01", Text: "hello"}},
			Duration:  1,
			Language:  "en",
		}
		require.NoError(t, store.PutResult(ctx, job.ID, &TerminalRecord{Result: result}))

		// 進捗が残っていても最終結果が優先される
		state, err = store.GetState(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, state.Kind)
		require.NotNil(t, state.Result)
		assert.Equal(t, "hello", state.Result.Text)
		assert.Len(t, state.Result.Subtitles, 1)

		require.NoError(t, store.ClearProgress(ctx, job.ID))
		state, err = store.GetState(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, state.Kind)
	})

	t.Run("terminal record is written once", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		job := newTestJob(t)
		require.NoError(t, store.CreateJob(ctx, job))

		require.NoError(t, store.PutResult(ctx, job.ID, &TerminalRecord{Error: "boom"}))
		err := store.PutResult(ctx, job.ID, &TerminalRecord{Result: &transcribe.Result{Text: "late"}})
		assert.ErrorIs(t, err, ErrAlreadyTerminal)

		state, err := store.GetState(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StateFailed, state.Kind)
		assert.Equal(t, "boom", state.Error)
	})

	t.Run("dispatch is claimed once", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		job := newTestJob(t)
		require.NoError(t, store.CreateJob(ctx, job))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claimed int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.ClaimDispatch(ctx, job.ID)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					claimed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, claimed)

		require.NoError(t, store.ReleaseDispatch(ctx, job.ID))
		ok, err := store.ClaimDispatch(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("progress is clamped", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		job := newTestJob(t)
		require.NoError(t, store.CreateJob(ctx, job))

		require.NoError(t, store.PutProgress(ctx, job.ID, 1.5))
		state, err := store.GetState(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, 1.0, state.Progress)
	})

	t.Run("delete removes everything", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		job := newTestJob(t)
		require.NoError(t, store.CreateJob(ctx, job))
		require.NoError(t, store.PutProgress(ctx, job.ID, 0.2))

		require.NoError(t, store.DeleteJob(ctx, job.ID))
		_, err := store.GetState(ctx, job.ID)
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("pending requires the upload", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		job := newTestJob(t)
		require.NoError(t, store.CreateJob(ctx, job))
		require.NoError(t, os.Remove(job.UploadPath))

		_, err := store.GetState(ctx, job.ID)
		assert.ErrorIs(t, err, ErrJobNotFound)

		require.NoError(t, store.PutProgress(ctx, job.ID, 0.7))
		state, err := store.GetState(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, StateInProgress, state.Kind)
	})
}

func newTestJob(t *testing.T) *Job {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "input.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
	return &Job{
		ID:         uuid.NewString(),
		Filename:   "clip.wav",
		UploadPath: path,
		Language:   "ja",
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestFileStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		store, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		return store
	})
}

func TestFileStoreLayout(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root)
	require.NoError(t, err)
	ctx := context.Background()
	job := newTestJob(t)
	require.NoError(t, store.CreateJob(ctx, job))
	require.NoError(t, store.PutProgress(ctx, job.ID, 0.3))
	require.NoError(t, store.PutResult(ctx, job.ID, &TerminalRecord{Error: "boom"}))
	_, err = store.ClaimDispatch(ctx, job.ID)
	require.NoError(t, err)

	for _, name := range []string{jobFileName, progressFileName, resultFileName, dispatchFileName} {
		assert.FileExists(t, filepath.Join(root, job.ID, name))
	}

	entries, err := os.ReadDir(filepath.Join(root, job.ID))
	require.NoError(t, err)
	assert.Len(t, entries, 4, "temp files should not be left behind")
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = store.CreateJob(context.Background(), &Job{ID: "../escape"})
	assert.Error(t, err)
	_, err = store.GetState(context.Background(), "../escape")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
