// Package assemble turns one user request into the context strings that feed
// the prompt builder: relevant notes material, recent chat history, excerpts
// from attached files, and an optional exact-chapter focus.
package assemble

import (
	"context"
	"fmt"
	"strings"

	"quill/pkg/chapter"
	"quill/pkg/chunk"
	"quill/pkg/index"
	"quill/pkg/store"
)

// DefaultHistoryTurns is how many recent exchanges enter the context when the
// caller does not say otherwise.
const DefaultHistoryTurns = 10

// DefaultTopK is the retrieval depth per source.
const DefaultTopK = 4

// HistoryStore is the read side of chat history. Implemented by the file
// store and the Redis backend.
type HistoryStore interface {
	RecentTurns(ctx context.Context, projectID string, n int) ([]store.Turn, error)
}

// FileRef points at one attached document's own index. Every document is
// retrieved against separately; indexes are never merged.
type FileRef struct {
	Label  string
	Handle index.Handle
}

// Sources selects which material may enter the assembled context.
type Sources struct {
	ProjectID    string
	UseNotes     bool
	NotesHandle  index.Handle
	NotesText    string
	UseHistory   bool
	HistoryTurns int
	TempFiles    []FileRef
	LibraryFiles []FileRef
}

// Bundle carries the assembled-but-not-yet-rendered context pieces. The
// prompt builder decides ordering and labeling; the assembler only gathers.
type Bundle struct {
	Notes        string
	History      string
	Files        string
	ChapterFocus string
}

type Assembler struct {
	Index   *index.Manager
	History HistoryStore
	TopK    int
}

func New(idx *index.Manager, history HistoryStore) *Assembler {
	return &Assembler{Index: idx, History: history, TopK: DefaultTopK}
}

// Assemble gathers context for a query. Retrieval misses of every kind
// (absent index, unknown chapter, nothing relevant) produce explicit output
// or empty strings, never errors; only upstream embedding failures return an
// error.
func (a *Assembler) Assemble(ctx context.Context, query string, src Sources) (Bundle, error) {
	var b Bundle

	// A direct chapter reference beats semantic retrieval: asking for
	// chapter 5 should return chapter 5, not fragments that resemble it.
	// A miss is reported in the context itself so the user can see the
	// chapter was not found instead of getting silently degraded retrieval.
	if id, ok := chapter.FindRef(query); ok && src.UseNotes {
		if content, found := chapter.Extract(src.NotesText, id); found {
			b.ChapterFocus = fmt.Sprintf(
				"המשתמש ביקש להתמקד בפרק %s. להלן התוכן המלא של הפרק:\n---\n%s\n---\n",
				id, strings.TrimSpace(content))
		} else {
			b.ChapterFocus = fmt.Sprintf("ניסיתי למצוא את פרק %s בקובץ הכללי אך לא מצאתי אותו.\n", id)
		}
	} else if src.UseNotes {
		notes, err := a.notesContext(ctx, query, src)
		if err != nil {
			return Bundle{}, err
		}
		b.Notes = notes
	}

	if src.UseHistory {
		history, err := a.historyContext(ctx, src)
		if err != nil {
			return Bundle{}, err
		}
		b.History = history
	}

	files, err := a.fileContext(ctx, query, src)
	if err != nil {
		return Bundle{}, err
	}
	b.Files = files

	return b, nil
}

func (a *Assembler) notesContext(ctx context.Context, query string, src Sources) (string, error) {
	var slices []string
	if a.Index.Exists(src.NotesHandle) {
		results, err := a.Index.Query(ctx, src.NotesHandle, query, a.topK())
		if err != nil {
			return "", fmt.Errorf("notes retrieval: %w", err)
		}
		slices = results
	} else if src.NotesText != "" {
		// No persisted index for this blob yet; fall back to the cheap
		// keyword selector rather than returning nothing.
		slices = chunk.SelectSlices(src.NotesText, query, a.topK())
	}
	if len(slices) == 0 {
		return "", nil
	}
	return "להלן קטעים רלוונטיים מתוך 'קובץ כללי' להתייחסותך:\n" +
		strings.Join(slices, "\n---\n") + "\n\n", nil
}

func (a *Assembler) historyContext(ctx context.Context, src Sources) (string, error) {
	n := src.HistoryTurns
	if n <= 0 {
		n = DefaultHistoryTurns
	}
	turns, err := a.History.RecentTurns(ctx, src.ProjectID, n)
	if err != nil {
		return "", fmt.Errorf("history fetch: %w", err)
	}
	if len(turns) == 0 {
		return "", nil
	}
	// Storage order is newest first; the rendered transcript reads oldest
	// to newest.
	lines := make([]string, 0, len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		lines = append(lines, fmt.Sprintf("ש: %s\nת: %s", turns[i].Question, turns[i].Answer))
	}
	return "היסטוריית שיחה קודמת:\n" + strings.Join(lines, "\n") + "\n\n", nil
}

func (a *Assembler) fileContext(ctx context.Context, query string, src Sources) (string, error) {
	var sb strings.Builder
	appendGroup := func(header string, refs []FileRef) error {
		wrote := false
		for _, ref := range refs {
			results, err := a.Index.Query(ctx, ref.Handle, query, a.topK())
			if err != nil {
				return fmt.Errorf("file retrieval %q: %w", ref.Label, err)
			}
			if len(results) == 0 {
				continue
			}
			if !wrote {
				sb.WriteString(header)
				wrote = true
			}
			fmt.Fprintf(&sb, "מתוך הקובץ '%s':\n%s\n", ref.Label, strings.Join(results, "\n---\n"))
		}
		if wrote {
			sb.WriteString("\n")
		}
		return nil
	}

	if err := appendGroup("ההקשר הבא מבוסס על קבצים זמניים שהמשתמש העלה:\n", src.TempFiles); err != nil {
		return "", err
	}
	if err := appendGroup("ההקשר הבא מבוסס על קבצים מהספרייה:\n", src.LibraryFiles); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (a *Assembler) topK() int {
	if a.TopK > 0 {
		return a.TopK
	}
	return DefaultTopK
}
