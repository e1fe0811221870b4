package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ryu655/voiceshape-clean/internal/transcribe"
)

// MemoryStore はプロセス内でジョブ状態を保持します。テストと単一プロセス運用向けです。
type MemoryStore struct {
	mu         sync.RWMutex
	jobs       map[string]Job
	progress   map[string]float64
	results    map[string]TerminalRecord
	dispatched map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[string]Job),
		progress:   make(map[string]float64),
		results:    make(map[string]TerminalRecord),
		dispatched: make(map[string]struct{}),
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if !safeID(job.ID) {
		return fmt.Errorf("invalid job id: %q", job.ID)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *MemoryStore) ClaimDispatch(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return false, ErrJobNotFound
	}
	if _, ok := s.dispatched[jobID]; ok {
		return false, nil
	}
	s.dispatched[jobID] = struct{}{}
	return true, nil
}

func (s *MemoryStore) ReleaseDispatch(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dispatched, jobID)
	return nil
}

func (s *MemoryStore) PutProgress(_ context.Context, jobID string, fraction float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[jobID] = clampFraction(fraction)
	return nil
}

func (s *MemoryStore) PutResult(_ context.Context, jobID string, record *TerminalRecord) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[jobID]; ok {
		return ErrAlreadyTerminal
	}
	s.results[jobID] = TerminalRecord{
		Result:     cloneResult(record.Result),
		Error:      record.Error,
		FinishedAt: record.FinishedAt,
	}
	return nil
}

func (s *MemoryStore) ClearProgress(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.progress, jobID)
	return nil
}

func (s *MemoryStore) GetState(_ context.Context, jobID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var record *TerminalRecord
	if r, ok := s.results[jobID]; ok {
		record = &TerminalRecord{Result: cloneResult(r.Result), Error: r.Error, FinishedAt: r.FinishedAt}
	}
	var progress *float64
	if p, ok := s.progress[jobID]; ok {
		progress = &p
	}
	pending := false
	if job, ok := s.jobs[jobID]; ok {
		pending = uploadPresent(&job)
	}
	return resolveState(record, progress, pending)
}

func (s *MemoryStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	delete(s.progress, jobID)
	delete(s.results, jobID)
	delete(s.dispatched, jobID)
	return nil
}

func cloneResult(r *transcribe.Result) *transcribe.Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Subtitles = append([]transcribe.Subtitle{}, r.Subtitles...)
	return &out
}
