package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkCoversEveryRune(t *testing.T) {
	text := strings.Repeat("אבגדה וזחטי ", 500)
	chunks := Chunk(text, 100, 20)
	require.NotEmpty(t, chunks)

	runes := []rune(text)
	covered := make([]bool, len(runes))
	for _, c := range chunks {
		assert.Equal(t, string(runes[c.Start:c.End]), c.Content)
		for i := c.Start; i < c.End; i++ {
			covered[i] = true
		}
	}
	for i, ok := range covered {
		require.True(t, ok, "rune %d not covered", i)
	}

	// Last chunk ends at the end of the text.
	assert.Equal(t, len(runes), chunks[len(chunks)-1].End)
}

func TestChunkDeterministic(t *testing.T) {
	text := strings.Repeat("some sample text ", 300)
	a := Chunk(text, 256, 32)
	b := Chunk(text, 256, 32)
	assert.Equal(t, a, b)
}

func TestChunkShortInput(t *testing.T) {
	chunks := Chunk("קצר", 1000, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, "קצר", chunks[0].Content)
}

func TestChunkEmptyInput(t *testing.T) {
	assert.Nil(t, Chunk("", 1000, 100))
}

func TestChunkDegenerateOverlap(t *testing.T) {
	text := strings.Repeat("x", 1000)

	// Overlap >= size must not loop forever or go backwards.
	for _, overlap := range []int{100, 150, -5} {
		chunks := Chunk(text, 100, overlap)
		require.NotEmpty(t, chunks)
		last := -1
		for _, c := range chunks {
			require.Greater(t, c.End, last, "chunks must advance")
			last = c.End
		}
		assert.Equal(t, 1000, chunks[len(chunks)-1].End)
	}
}

func TestChunkOverlapRepeatsTail(t *testing.T) {
	text := strings.Repeat("0123456789", 30)
	chunks := Chunk(text, 100, 20)
	require.GreaterOrEqual(t, len(chunks), 2)
	tail := chunks[0].Content[len(chunks[0].Content)-20:]
	assert.True(t, strings.HasPrefix(chunks[1].Content, tail))
}

func TestScoreCountsDistinctTokens(t *testing.T) {
	chunk := "הדרקון עף מעל ההר הגבוה"

	one := Score(chunk, "דרקון")
	two := Score(chunk, "דרקון הר")
	assert.InDelta(t, 2.1, one, 1e-9)
	assert.InDelta(t, 4.1, two, 1e-9)

	// Duplicate query tokens count once.
	dup := Score(chunk, "דרקון דרקון")
	assert.Equal(t, one, dup)
}

func TestScoreNoMatchGetsEpsilonOnly(t *testing.T) {
	assert.InDelta(t, 0.1, Score("תוכן כלשהו", "zzz"), 1e-9)
	assert.Zero(t, Score("", "דרקון"))
}

func TestScoreCaseInsensitive(t *testing.T) {
	a := Score("The Dragon flies", "dragon")
	b := Score("The Dragon flies", "DRAGON")
	assert.Equal(t, a, b)
	assert.Greater(t, a, 2.0)
}

func TestSelectSlicesPrefersMatches(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString(strings.Repeat("מילים סתמיות בלי קשר ", 60))
	}
	sb.WriteString(strings.Repeat("הדרקון האדום ישן במערה ", 60))

	slices := SelectSlices(sb.String(), "דרקון", 3)
	require.NotEmpty(t, slices)
	assert.LessOrEqual(t, len(slices), 3)
	assert.Contains(t, slices[0], "דרקון")
}

func TestSelectSlicesFallbackWhenNothingMatches(t *testing.T) {
	text := strings.Repeat("מילים סתמיות לגמרי ", 200)
	slices := SelectSlices(text, "zzzz", 3)
	// No slice scores above the epsilon floor, so the first chunks come back.
	require.Len(t, slices, 3)
	first := Chunk(text, RetrievalSize, RetrievalOverlap)[0]
	assert.Equal(t, first.Content, slices[0])
}

func TestSelectSlicesEmptyText(t *testing.T) {
	assert.Empty(t, SelectSlices("", "דרקון", 3))
}
