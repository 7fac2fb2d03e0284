package chunk

import (
	"regexp"
	"sort"
	"strings"
)

// Window sizes used across the app. Retrieval and review chunking serve
// different purposes and are tuned independently.
const (
	RetrievalSize    = 1200
	RetrievalOverlap = 200

	IndexSize    = 1000
	IndexOverlap = 100

	ReviewSize    = 12000
	ReviewOverlap = 800
)

// TextChunk is one window of a larger text. Offsets are rune positions into
// the original string; consecutive chunks may overlap.
type TextChunk struct {
	Content string
	Start   int
	End     int
}

// ScoredChunk pairs a chunk with its relevance score against a query.
type ScoredChunk struct {
	Chunk TextChunk
	Score float64
}

// Chunk splits text into overlapping windows of at most size runes, advancing
// by size-overlap each step. The last window is truncated, never padded.
// Every rune of the input lands in at least one chunk; an empty input yields
// no chunks. A degenerate overlap (negative, or >= size) is treated as zero so
// the walk always makes progress.
func Chunk(text string, size, overlap int) []TextChunk {
	if size <= 0 || text == "" {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	n := len(runes)
	var out []TextChunk
	for i := 0; i < n; {
		j := i + size
		if j > n {
			j = n
		}
		out = append(out, TextChunk{Content: string(runes[i:j]), Start: i, End: j})
		if j == n {
			break
		}
		i = j - overlap
	}
	return out
}

// wordSplit separates on anything that is not an ASCII word character or a
// Hebrew letter. The app's content is largely Hebrew; \w alone would split
// inside every Hebrew word.
var wordSplit = regexp.MustCompile(`[^\w\x{0590}-\x{05FF}]+`)

// scoreEpsilon is the baseline awarded to any non-empty chunk so that
// non-relevant material still sorts above nothing at all.
const scoreEpsilon = 0.1

// Score rates a chunk against a query: two points per distinct query token
// that occurs as a substring of the lower-cased chunk, plus the non-empty
// epsilon. Cheap and deterministic; not stemmed, not fuzzy.
func Score(chunk, query string) float64 {
	if chunk == "" {
		return 0
	}
	low := strings.ToLower(chunk)
	seen := make(map[string]struct{})
	score := scoreEpsilon
	for _, tok := range wordSplit.Split(strings.ToLower(query), -1) {
		if tok == "" {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		if strings.Contains(low, tok) {
			score += 2
		}
	}
	return score
}

// SelectSlices is the index-free retrieval path used for material that has no
// persisted vector index (pasted text, fresh uploads). It chunks with the
// retrieval window, scores every chunk against the query, and returns up to k
// contents sorted by descending score, ties kept in original order. Chunks
// that matched no token at all are excluded; if nothing matched, the first k
// chunks are returned instead so a non-empty source never yields nothing.
func SelectSlices(source, query string, k int) []string {
	if k <= 0 {
		return nil
	}
	chunks := Chunk(source, RetrievalSize, RetrievalOverlap)
	if len(chunks) == 0 {
		return nil
	}

	scored := make([]ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = ScoredChunk{Chunk: c, Score: Score(c.Content, query)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	out := make([]string, 0, k)
	for _, sc := range scored {
		if len(out) == k {
			break
		}
		if sc.Score <= scoreEpsilon {
			break
		}
		out = append(out, sc.Chunk.Content)
	}
	if len(out) == 0 {
		for i := 0; i < len(chunks) && i < k; i++ {
			out = append(out, chunks[i].Content)
		}
	}
	return out
}
