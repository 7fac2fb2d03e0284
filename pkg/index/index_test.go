package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordEmbedder produces a deterministic vector per text from a fixed
// vocabulary, so retrieval order is predictable in tests.
type keywordEmbedder struct {
	vocab []string
	calls int
}

func (e *keywordEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float64, error) {
	e.calls++
	out := make([][]float64, len(texts))
	for i, t := range texts {
		vec := make([]float64, len(e.vocab)+1)
		vec[len(e.vocab)] = 0.1
		for j, w := range e.vocab {
			if strings.Contains(t, w) {
				vec[j] = 1
			}
		}
		out[i] = vec
	}
	return out, nil
}

func newTestManager(t *testing.T) (*Manager, *keywordEmbedder) {
	t.Helper()
	emb := &keywordEmbedder{vocab: []string{"דרקון", "טירה", "נסיכה"}}
	return NewManager(t.TempDir(), emb), emb
}

func TestBuildAndQuery(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	text := strings.Repeat("הדרקון ישן במערה. ", 80) +
		strings.Repeat("הטירה עומדת על ההר. ", 80) +
		strings.Repeat("הנסיכה יצאה לדרך. ", 80)
	require.NoError(t, m.Build(ctx, "p/notes", text))
	assert.True(t, m.Exists("p/notes"))

	results, err := m.Query(ctx, "p/notes", "ספר לי על דרקון", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 2)
	assert.Contains(t, results[0], "דרקון")
}

func TestQueryMissingIndexIsSilentMiss(t *testing.T) {
	m, _ := newTestManager(t)
	results, err := m.Query(context.Background(), "nothing/here", "דרקון", 3)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestQueryCorruptIndexIsSilentMiss(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Build(ctx, "p/notes", "הדרקון ישן"))

	path, err := m.path("p/notes")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0644))
	m.loads.Invalidate("p/notes")

	results, err := m.Query(ctx, "p/notes", "דרקון", 3)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestRebuildReplacesIndex(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Build(ctx, "p/notes", strings.Repeat("הדרקון ישן. ", 100)))
	require.NoError(t, m.Build(ctx, "p/notes", strings.Repeat("הטירה עומדת. ", 100)))

	results, err := m.Query(ctx, "p/notes", "טירה", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotContains(t, r, "דרקון")
	}
}

func TestBuildEmptyTextRemovesIndex(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Build(ctx, "p/notes", "הדרקון ישן"))
	require.True(t, m.Exists("p/notes"))
	require.NoError(t, m.Build(ctx, "p/notes", ""))
	assert.False(t, m.Exists("p/notes"))
}

func TestRemove(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Build(ctx, "p/temp/f1", "טקסט כלשהו"))
	require.NoError(t, m.Remove("p/temp/f1"))
	assert.False(t, m.Exists("p/temp/f1"))
	// Removing twice is fine.
	assert.NoError(t, m.Remove("p/temp/f1"))
}

func TestVerifyRebuildsMissing(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Build(ctx, "a/notes", "הדרקון ישן"))
	path, err := m.path("a/notes")
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	m.loads.Invalidate("a/notes")

	m.Verify(ctx, map[Handle]string{
		"a/notes": "הדרקון ישן",
		"b/notes": "הטירה עומדת",
	})

	assert.True(t, m.Exists("a/notes"))
	assert.True(t, m.Exists("b/notes"))
}

func TestHandleTraversalRejected(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Build(context.Background(), Handle("../escape"), "טקסט")
	assert.Error(t, err)
}

func TestIndexFileLandsUnderRoot(t *testing.T) {
	emb := &keywordEmbedder{vocab: []string{"x"}}
	root := t.TempDir()
	m := NewManager(root, emb)
	require.NoError(t, m.Build(context.Background(), "proj/notes", "x y z"))

	found := false
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			found = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, found)
}
