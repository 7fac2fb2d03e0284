// Package review runs literary reviews and proofreads over texts of any
// length. Short texts go out as one model call; long texts are split into
// overlapping chunks, reviewed by a bounded worker pool, and synthesized
// into a single report.
package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/segmentio/ksuid"

	"quill/pkg/chunk"
	"quill/pkg/inference"
	"quill/pkg/prompt"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// ErrCancelled reports a user-initiated cancel, as opposed to a failure.
var ErrCancelled = errors.New("review cancelled")

type Config struct {
	// MaxSingleChars is the largest input handled in one call.
	MaxSingleChars int
	ChunkSize      int
	Overlap        int
	Concurrency    int
	CallTimeout    time.Duration
	MaxRetries     int
}

func DefaultConfig() Config {
	return Config{
		MaxSingleChars: 24000,
		ChunkSize:      chunk.ReviewSize,
		Overlap:        chunk.ReviewOverlap,
		Concurrency:    4,
		CallTimeout:    90 * time.Second,
		MaxRetries:     3,
	}
}

// Runner starts review jobs and tracks them until collected.
type Runner struct {
	inferencer inference.Inferencer
	config     Config

	mu   sync.Mutex
	jobs map[string]*Job
}

func NewRunner(inferencer inference.Inferencer, config Config) *Runner {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultConfig().ChunkSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultConfig().CallTimeout
	}
	if config.MaxSingleChars <= 0 {
		config.MaxSingleChars = DefaultConfig().MaxSingleChars
	}
	return &Runner{
		inferencer: inferencer,
		config:     config,
		jobs:       make(map[string]*Job),
	}
}

// Job is one in-flight or finished review.
type Job struct {
	ID string

	mu        sync.Mutex
	status    Status
	completed int
	total     int
	result    string
	err       error

	cancel context.CancelFunc
	done   chan struct{}
}

// Progress reports the job's status and chunk counters.
func (j *Job) Progress() (status Status, completed, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, j.completed, j.total
}

// Cancel requests the job stop. Finished jobs are unaffected.
func (j *Job) Cancel() {
	j.cancel()
}

// Wait blocks until the job finishes or ctx expires, then returns the final
// report. A cancelled job returns ErrCancelled.
func (j *Job) Wait(ctx context.Context) (string, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Start launches a review of text under the given rules preamble and returns
// immediately. kind is prompt.ReviewGeneral or prompt.ReviewProofread.
func (r *Runner) Start(ctx context.Context, kind, rules, text string) *Job {
	runCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:     ksuid.New().String(),
		status: StatusPending,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	go r.run(runCtx, job, kind, rules, text)
	return job
}

// Job looks up a previously started job by ID.
func (r *Runner) Job(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

func (r *Runner) run(ctx context.Context, job *Job, kind, rules, text string) {
	defer close(job.done)
	defer job.cancel()

	result, err := r.execute(ctx, job, kind, rules, text)

	job.mu.Lock()
	defer job.mu.Unlock()
	switch {
	case err == nil:
		job.status = StatusCompleted
		job.result = result
	case errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled):
		job.status = StatusCancelled
		job.err = ErrCancelled
	default:
		job.status = StatusFailed
		job.err = err
	}
}

func (r *Runner) execute(ctx context.Context, job *Job, kind, rules, text string) (string, error) {
	if len([]rune(text)) <= r.config.MaxSingleChars {
		job.setProgress(StatusRunning, 0, 1)
		part, err := r.callWithRetry(ctx, prompt.ReviewChunk(kind, rules, text))
		if err != nil {
			return "", err
		}
		job.setProgress(StatusRunning, 1, 1)
		return part, nil
	}

	chunks := chunk.Chunk(text, r.config.ChunkSize, r.config.Overlap)
	total := len(chunks)
	job.setProgress(StatusRunning, 0, total)
	log.Info("chunked review", "id", job.ID, "kind", kind, "chunks", total)

	parts := make([]string, total)
	next := make(chan int)
	poolCtx, poolCancel := context.WithCancel(ctx)
	defer poolCancel()

	var (
		wg       sync.WaitGroup
		failMu   sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		failMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		failMu.Unlock()
		poolCancel()
	}

	workers := r.config.Concurrency
	if workers > total {
		workers = total
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				part, err := r.callWithRetry(poolCtx, prompt.ReviewChunk(kind, rules, chunks[i].Content))
				if err != nil {
					fail(fmt.Errorf("chunk %d: %w", i+1, err))
					return
				}
				parts[i] = part
				job.incProgress()
			}
		}()
	}

feed:
	for i := 0; i < total; i++ {
		select {
		case next <- i:
		case <-poolCtx.Done():
			break feed
		}
	}
	close(next)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	failMu.Lock()
	err := firstErr
	failMu.Unlock()
	if err != nil {
		return "", err
	}

	if total == 1 {
		return parts[0], nil
	}
	return r.callWithRetry(ctx, prompt.SynthesizeReview(kind, parts))
}

// callWithRetry makes one model call with a per-attempt timeout, backing off
// linearly between attempts. A cancelled parent context stops retrying.
func (r *Runner) callWithRetry(ctx context.Context, userPrompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.config.CallTimeout)
		out, err := r.inferencer.Infer(callCtx, nil, "", userPrompt)
		cancel()
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		if attempt < r.config.MaxRetries {
			backoff := time.Duration(attempt) * 1200 * time.Millisecond
			log.Warn("review call failed, retrying", "attempt", attempt, "backoff", backoff, "err", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", lastErr
}

func (j *Job) setProgress(status Status, completed, total int) {
	j.mu.Lock()
	j.status = status
	j.completed = completed
	j.total = total
	j.mu.Unlock()
}

func (j *Job) incProgress() {
	j.mu.Lock()
	j.completed++
	j.mu.Unlock()
}
