// Package index builds and queries the per-blob semantic indexes. Every text
// blob that wants semantic retrieval (general notes, each uploaded file, each
// library document) owns exactly one index under the manager's root; indexes
// are never merged. An index is rebuilt from scratch on every save of its
// blob, so a readable index always reflects the last saved text.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"quill/pkg/chunk"
	"quill/pkg/flight"
	"quill/pkg/inference"
	"quill/pkg/utils"
)

// Handle names one persisted index, as a slash-separated path relative to the
// manager root (e.g. "project_3/notes", "project_3/temp/2EokC...").
type Handle string

type stored struct {
	Dim    int          `json:"dim"`
	Chunks []indexChunk `json:"chunks"`
}

type indexChunk struct {
	Content string    `json:"content"`
	Vector  []float64 `json:"vector"`
}

// Manager owns the on-disk index files and the embedding collaborator.
type Manager struct {
	embedder inference.Embedder
	root     string

	mu    sync.Mutex
	locks map[Handle]*sync.Mutex

	loads *flight.Cache[Handle, *stored]
}

func NewManager(root string, embedder inference.Embedder) *Manager {
	m := &Manager{
		embedder: embedder,
		root:     root,
		locks:    make(map[Handle]*sync.Mutex),
	}
	m.loads = flight.NewCache(m.load)
	return m
}

// Build replaces whatever index exists at handle with one built from text.
// The new index is written to a temp file and renamed into place, so readers
// either see the previous index or the complete new one, never a partial
// write. Concurrent builds on the same handle serialize; last write wins.
// Empty text removes the index (querying it then misses, which is normal).
func (m *Manager) Build(ctx context.Context, handle Handle, text string) error {
	lock := m.handleLock(handle)
	lock.Lock()
	defer lock.Unlock()

	path, err := m.path(handle)
	if err != nil {
		return err
	}

	if strings.TrimSpace(text) == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing index %s: %w", handle, err)
		}
		m.loads.Invalidate(handle)
		return nil
	}

	chunks := chunk.Chunk(text, chunk.IndexSize, chunk.IndexOverlap)
	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}

	vectors, err := m.embedder.EmbedMany(ctx, contents)
	if err != nil {
		return fmt.Errorf("embedding %d chunks for %s: %w", len(contents), handle, err)
	}
	if len(vectors) != len(contents) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(contents))
	}

	st := stored{Chunks: make([]indexChunk, len(chunks))}
	for i := range chunks {
		if st.Dim == 0 {
			st.Dim = len(vectors[i])
		}
		st.Chunks[i] = indexChunk{Content: contents[i], Vector: vectors[i]}
	}

	tmp := path + ".tmp"
	if err := utils.Save(tmp, st); err != nil {
		return fmt.Errorf("writing index %s: %w", handle, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing index %s: %w", handle, err)
	}
	m.loads.Invalidate(handle)
	return nil
}

// Query embeds the query text and returns the k nearest chunk contents, most
// similar first. A missing or unreadable index is a normal miss and yields an
// empty result, not an error: many blobs simply have never been indexed.
func (m *Manager) Query(ctx context.Context, handle Handle, query string, k int) ([]string, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	st, err := m.loads.Get(handle)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("index unreadable, treating as missing", "handle", handle, "error", err)
		}
		return nil, nil
	}

	vecs, err := m.embedder.EmbedMany(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vecs))
	}
	qv := vecs[0]

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(st.Chunks))
	for i, c := range st.Chunks {
		scores[i] = scored{idx: i, score: cosine(qv, c.Vector)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if k > len(scores) {
		k = len(scores)
	}
	out := make([]string, 0, k)
	for _, s := range scores[:k] {
		out = append(out, st.Chunks[s.idx].Content)
	}
	return out, nil
}

// Exists reports whether a readable index file is present at handle.
func (m *Manager) Exists(handle Handle) bool {
	path, err := m.path(handle)
	if err != nil {
		return false
	}
	return utils.Exists(path)
}

// Remove deletes the index at handle, if any.
func (m *Manager) Remove(handle Handle) error {
	lock := m.handleLock(handle)
	lock.Lock()
	defer lock.Unlock()

	path, err := m.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	m.loads.Invalidate(handle)
	return nil
}

// Verify is the startup consistency check: for every handle whose backing
// file is missing but whose source text is still available, the index is
// rebuilt transparently. Failures are logged and skipped so one bad blob
// cannot block startup.
func (m *Manager) Verify(ctx context.Context, sources map[Handle]string) {
	for handle, text := range sources {
		if strings.TrimSpace(text) == "" {
			continue
		}
		if m.Exists(handle) {
			continue
		}
		log.Warn("index missing, rebuilding from source", "handle", handle)
		if err := m.Build(ctx, handle, text); err != nil {
			log.Error("index rebuild failed", "handle", handle, "error", err)
		}
	}
}

func (m *Manager) handleLock(h Handle) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[h]
	if !ok {
		lock = new(sync.Mutex)
		m.locks[h] = lock
	}
	return lock
}

// path resolves a handle under the root, rejecting traversal outside it.
func (m *Manager) path(h Handle) (string, error) {
	rootAbs, err := filepath.Abs(m.root)
	if err != nil {
		return "", err
	}
	full := filepath.Join(rootAbs, filepath.FromSlash(string(h))+".json")
	if full != rootAbs && !strings.HasPrefix(full, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("handle %q escapes index root", h)
	}
	return full, nil
}

func (m *Manager) load(h Handle) (*stored, error) {
	path, err := m.path(h)
	if err != nil {
		return nil, err
	}
	st, err := utils.Load[stored](path)
	if err != nil {
		return nil, err
	}
	if len(st.Chunks) == 0 {
		return nil, fmt.Errorf("index %s has no chunks", h)
	}
	return &st, nil
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
