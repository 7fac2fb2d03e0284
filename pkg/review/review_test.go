package review

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/pkg/prompt"
)

// stubInferencer scripts model behavior per call and records every prompt.
type stubInferencer struct {
	mu       sync.Mutex
	prompts  []string
	inflight int
	maxSeen  int
	respond  func(ctx context.Context, call int, user string) (string, error)
}

func (s *stubInferencer) Infer(ctx context.Context, _ *openai.ChatCompletionNewParams, _, user string) (string, error) {
	s.mu.Lock()
	call := len(s.prompts)
	s.prompts = append(s.prompts, user)
	s.inflight++
	if s.inflight > s.maxSeen {
		s.maxSeen = s.inflight
	}
	respond := s.respond
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inflight--
		s.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if respond != nil {
		return respond(ctx, call, user)
	}
	return "OK", nil
}

func (s *stubInferencer) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func testConfig() Config {
	return Config{
		MaxSingleChars: 100,
		ChunkSize:      50,
		Overlap:        10,
		Concurrency:    4,
		CallTimeout:    5 * time.Second,
		MaxRetries:     3,
	}
}

func synthesisCalls(prompts []string) int {
	n := 0
	for _, p := range prompts {
		if strings.Contains(p, "אחד את ממצאי הביקורת") {
			n++
		}
	}
	return n
}

func TestSmallInputSingleCall(t *testing.T) {
	stub := &stubInferencer{respond: func(_ context.Context, _ int, _ string) (string, error) {
		return "הדוח המלא", nil
	}}
	r := NewRunner(stub, testConfig())

	job := r.Start(context.Background(), prompt.ReviewGeneral, "RULES\n", "טקסט קצר")
	result, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "הדוח המלא", result)

	calls := stub.calls()
	require.Len(t, calls, 1, "one call, no synthesis")
	assert.Contains(t, calls[0], "RULES")

	status, completed, total := job.Progress()
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, total)
}

func TestChunkedRunSynthesizesInOrder(t *testing.T) {
	stub := &stubInferencer{respond: func(_ context.Context, _ int, user string) (string, error) {
		if strings.Contains(user, "אחד את ממצאי הביקורת") {
			return "הדוח המאוחד", nil
		}
		// Echo a marker from the chunk so ordering is observable.
		if i := strings.Index(user, "MARK"); i != -1 {
			return user[i : i+5], nil
		}
		return "?", nil
	}}
	r := NewRunner(stub, testConfig())

	// Five distinct chunks, each starting with its own marker.
	var sb strings.Builder
	for i := 0; i < 5; i++ {
		sb.WriteString("MARK" + string(rune('A'+i)) + strings.Repeat("x", 35))
	}
	text := sb.String()
	require.Greater(t, len([]rune(text)), testConfig().MaxSingleChars)

	job := r.Start(context.Background(), prompt.ReviewGeneral, "", text)
	result, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "הדוח המאוחד", result)

	calls := stub.calls()
	require.Equal(t, 1, synthesisCalls(calls))
	synthesis := calls[len(calls)-1]
	// Parts appear in original chunk order despite concurrent execution.
	prev := -1
	for _, mark := range []string{"MARKA", "MARKB", "MARKC", "MARKD", "MARKE"} {
		pos := strings.Index(synthesis, mark)
		require.NotEqual(t, -1, pos, mark)
		assert.Greater(t, pos, prev)
		prev = pos
	}

	status, completed, total := job.Progress()
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, total, completed)
	assert.GreaterOrEqual(t, total, 5)
}

func TestConcurrencyBounded(t *testing.T) {
	stub := &stubInferencer{respond: func(_ context.Context, _ int, _ string) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return "part", nil
	}}
	cfg := testConfig()
	cfg.Concurrency = 2
	r := NewRunner(stub, cfg)

	text := strings.Repeat("y", 500)
	job := r.Start(context.Background(), prompt.ReviewProofread, "", text)
	_, err := job.Wait(context.Background())
	require.NoError(t, err)

	stub.mu.Lock()
	maxSeen := stub.maxSeen
	stub.mu.Unlock()
	assert.LessOrEqual(t, maxSeen, 2)
}

func TestCancelStopsRunWithoutSynthesis(t *testing.T) {
	started := make(chan struct{}, 16)
	stub := &stubInferencer{respond: func(ctx context.Context, _ int, _ string) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	}}
	r := NewRunner(stub, testConfig())

	job := r.Start(context.Background(), prompt.ReviewGeneral, "", strings.Repeat("z", 500))
	<-started
	job.Cancel()

	_, err := job.Wait(context.Background())
	require.ErrorIs(t, err, ErrCancelled)

	status, _, _ := job.Progress()
	assert.Equal(t, StatusCancelled, status)
	assert.Zero(t, synthesisCalls(stub.calls()))
}

func TestFlakyChunkRetries(t *testing.T) {
	var once sync.Once
	stub := &stubInferencer{respond: func(_ context.Context, _ int, user string) (string, error) {
		if strings.Contains(user, "אחד את ממצאי הביקורת") {
			return "final", nil
		}
		var fail bool
		once.Do(func() { fail = true })
		if fail {
			return "", errors.New("transient upstream error")
		}
		return "part", nil
	}}
	r := NewRunner(stub, testConfig())

	job := r.Start(context.Background(), prompt.ReviewGeneral, "", strings.Repeat("w", 500))
	result, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "final", result)
}

func TestPersistentFailureFailsJob(t *testing.T) {
	stub := &stubInferencer{respond: func(_ context.Context, _ int, _ string) (string, error) {
		return "", errors.New("model down")
	}}
	cfg := testConfig()
	cfg.MaxRetries = 1
	r := NewRunner(stub, cfg)

	job := r.Start(context.Background(), prompt.ReviewGeneral, "", strings.Repeat("v", 500))
	_, err := job.Wait(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCancelled)

	status, _, _ := job.Progress()
	assert.Equal(t, StatusFailed, status)
	assert.Zero(t, synthesisCalls(stub.calls()))
}

func TestRunnerJobLookup(t *testing.T) {
	stub := &stubInferencer{}
	r := NewRunner(stub, testConfig())

	job := r.Start(context.Background(), prompt.ReviewGeneral, "", "קצר")
	got, ok := r.Job(job.ID)
	require.True(t, ok)
	assert.Same(t, job, got)

	_, ok = r.Job("no-such-job")
	assert.False(t, ok)
}
