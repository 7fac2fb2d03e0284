package assemble

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/pkg/index"
	"quill/pkg/store"
)

type keywordEmbedder struct {
	vocab []string
}

func (e *keywordEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float64, error) {
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

type fakeHistory struct {
	turns []store.Turn
}

func (f *fakeHistory) RecentTurns(_ context.Context, _ string, n int) ([]store.Turn, error) {
	if n > len(f.turns) {
		n = len(f.turns)
	}
	return f.turns[:n], nil
}

func newTestAssembler(t *testing.T) (*Assembler, *index.Manager) {
	t.Helper()
	idx := index.NewManager(t.TempDir(), &keywordEmbedder{vocab: []string{"דרקון", "טירה"}})
	return New(idx, &fakeHistory{}), idx
}

const dividedNotes = "פרק 1: ההתחלה\nתוכן א\nפרק 2: האמצע\nתוכן ב\nפרק 3: הסוף\nתוכן ג"

func TestAssembleChapterFocus(t *testing.T) {
	a, _ := newTestAssembler(t)
	b, err := a.Assemble(context.Background(), "עיין בפרק 2", Sources{
		UseNotes:    true,
		NotesHandle: "p/notes",
		NotesText:   dividedNotes,
	})
	require.NoError(t, err)
	assert.Equal(t,
		"המשתמש ביקש להתמקד בפרק 2. להלן התוכן המלא של הפרק:\n---\nתוכן ב\n---\n",
		b.ChapterFocus)
	assert.Empty(t, b.Notes, "a chapter focus replaces retrieval")
}

func TestAssembleChapterMissReported(t *testing.T) {
	a, _ := newTestAssembler(t)
	b, err := a.Assemble(context.Background(), "עיין בפרק 9", Sources{
		UseNotes:    true,
		NotesHandle: "p/notes",
		NotesText:   dividedNotes,
	})
	require.NoError(t, err)
	assert.Equal(t, "ניסיתי למצוא את פרק 9 בקובץ הכללי אך לא מצאתי אותו.\n", b.ChapterFocus)
}

func TestAssembleNotesFallbackWithoutIndex(t *testing.T) {
	a, _ := newTestAssembler(t)
	notes := strings.Repeat("הדרקון האדום ישן במערה. ", 100)
	b, err := a.Assemble(context.Background(), "ספר לי על הדרקון", Sources{
		UseNotes:    true,
		NotesHandle: "p/notes",
		NotesText:   notes,
	})
	require.NoError(t, err)
	assert.Contains(t, b.Notes, "להלן קטעים רלוונטיים מתוך 'קובץ כללי' להתייחסותך:")
	assert.Contains(t, b.Notes, "דרקון")
}

func TestAssembleNotesSemanticWhenIndexed(t *testing.T) {
	a, idx := newTestAssembler(t)
	ctx := context.Background()
	notes := strings.Repeat("הדרקון ישן במערה. ", 80) + strings.Repeat("הטירה על ההר. ", 80)
	require.NoError(t, idx.Build(ctx, "p/notes", notes))

	b, err := a.Assemble(ctx, "איפה הטירה", Sources{
		UseNotes:    true,
		NotesHandle: "p/notes",
		NotesText:   notes,
	})
	require.NoError(t, err)
	require.Contains(t, b.Notes, "להלן קטעים רלוונטיים")
	firstSlice := strings.SplitN(strings.TrimPrefix(b.Notes,
		"להלן קטעים רלוונטיים מתוך 'קובץ כללי' להתייחסותך:\n"), "\n---\n", 2)[0]
	assert.Contains(t, firstSlice, "טירה")
}

func TestAssembleNotesDisabled(t *testing.T) {
	a, _ := newTestAssembler(t)
	b, err := a.Assemble(context.Background(), "עיין בפרק 2", Sources{
		UseNotes:  false,
		NotesText: dividedNotes,
	})
	require.NoError(t, err)
	assert.Empty(t, b.ChapterFocus)
	assert.Empty(t, b.Notes)
}

func TestAssembleHistoryChronological(t *testing.T) {
	idx := index.NewManager(t.TempDir(), &keywordEmbedder{})
	history := &fakeHistory{turns: []store.Turn{
		{Question: "שאלה אחרונה", Answer: "תשובה אחרונה"},
		{Question: "שאלה ראשונה", Answer: "תשובה ראשונה"},
	}}
	a := New(idx, history)

	b, err := a.Assemble(context.Background(), "המשך", Sources{UseHistory: true})
	require.NoError(t, err)
	require.Contains(t, b.History, "היסטוריית שיחה קודמת:")
	first := strings.Index(b.History, "שאלה ראשונה")
	last := strings.Index(b.History, "שאלה אחרונה")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, last)
	assert.Less(t, first, last, "transcript reads oldest to newest")
	assert.Contains(t, b.History, "ש: שאלה ראשונה\nת: תשובה ראשונה")
}

func TestAssembleFilesLabeled(t *testing.T) {
	a, idx := newTestAssembler(t)
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx, "p/temp/f1", strings.Repeat("הדרקון במערה. ", 50)))

	b, err := a.Assemble(ctx, "דרקון", Sources{
		TempFiles: []FileRef{{Label: "notes.txt", Handle: "p/temp/f1"}},
	})
	require.NoError(t, err)
	assert.Contains(t, b.Files, "ההקשר הבא מבוסס על קבצים זמניים שהמשתמש העלה:")
	assert.Contains(t, b.Files, "מתוך הקובץ 'notes.txt':")
	assert.Contains(t, b.Files, "דרקון")
}

func TestAssembleMissingFileIndexSkipped(t *testing.T) {
	a, _ := newTestAssembler(t)
	b, err := a.Assemble(context.Background(), "דרקון", Sources{
		TempFiles: []FileRef{{Label: "gone.txt", Handle: "p/temp/missing"}},
	})
	require.NoError(t, err)
	assert.Empty(t, b.Files)
}
