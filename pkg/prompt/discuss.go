package prompt

import (
	"fmt"
	"strings"

	"quill/pkg/store"
)

// RenderThread flattens a discussion into "role: content" lines, the form
// every update prompt expects.
func RenderThread(thread []store.Message) string {
	lines := make([]string, 0, len(thread))
	for _, m := range thread {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

// SynopsisDiscussion frames a brainstorm over the current synopsis draft.
func SynopsisDiscussion(preamble, currentDraft, thread string) string {
	return fmt.Sprintf("%s**Current Synopsis Draft:**\n%s\n\n**Current Discussion:**\n%s", preamble, currentDraft, thread)
}

// DivisionDiscussion frames a conversation about an existing chapter
// division.
func DivisionDiscussion(preamble, originalDivision, thread string) string {
	return fmt.Sprintf("%s**Original Divided Synopsis:**\n%s\n\n**Current Discussion:**\n%s", preamble, originalDivision, thread)
}

// ChapterDiscussion frames a conversation about one chapter against the full
// synopsis.
func ChapterDiscussion(preamble, fullSynopsis, chapterContent, thread string) string {
	return fmt.Sprintf("%s**Full Context:**\n%s\n\n**Original Content (Focus):**\n%s\n\n**Current Discussion:**\n%s", preamble, fullSynopsis, chapterContent, thread)
}

// SynopsisUpdate rewrites the synopsis draft from the conclusions of a
// brainstorming discussion.
func SynopsisUpdate(currentDraft, thread string) string {
	return fmt.Sprintf(`
You are a senior editor helping a writer develop a synopsis. You will be given the current draft of the synopsis and a transcript of a brainstorming discussion.

Your task is to intelligently rewrite and improve the current draft based on the ideas and conclusions from the discussion.

Follow these steps:
1.  Read the **Current Synopsis Draft** to understand the story so far.
2.  Read the **Discussion Transcript** to identify the new ideas, changes, plot points, and character developments that were decided upon.
3.  Integrate these new elements into the synopsis. You may need to restructure, add, remove, or rewrite sections to make the story flow logically.
4.  Ensure the final output is a single, cohesive, and complete synopsis.
5.  Return ONLY the new, rewritten synopsis. Do not include any conversational text, explanations, or preamble. Your response should be the full text of the improved synopsis.

**Current Synopsis Draft:**
---
%s
---

**Discussion Transcript:**
---
%s
---

**New, Rewritten Synopsis:**
`, currentDraft, thread)
}

// DivisionUpdate re-divides an already divided synopsis per the discussion.
// Only headings move; the content itself must survive untouched.
func DivisionUpdate(originalDivision, thread string) string {
	return fmt.Sprintf(`
You are an expert editor. You will be given a synopsis that has already been divided into chapters, and a transcript of a discussion about how to improve that division.

Your task is to re-divide the original text based on the instructions from the discussion.

Follow these steps precisely:
1.  Read the **Original Divided Synopsis** to understand the starting point.
2.  Read the **Discussion Transcript** to understand the requested changes (e.g., "merge chapters 2 and 3," "split chapter 5 into two parts").
3.  Apply these changes to the original text. **Crucially, you must not alter, summarize, or rewrite the content of the synopsis itself.** Your only job is to move, add, or remove the chapter headings (e.g., "פרק 1:"). The final word count must be identical to the original.
4.  Return ONLY the final, re-divided synopsis. Do not add any conversational preamble or explanations. Your response must begin directly with "פרק 1...".

**Original Divided Synopsis:**
---
%s
---

**Discussion Transcript:**
---
%s
---

**New, Re-divided Synopsis:**
`, originalDivision, thread)
}

// ChapterUpdate rewrites one chapter's synopsis from a discussion, keeping it
// consistent with the full synopsis.
func ChapterUpdate(originalContent, thread, fullSynopsis string) string {
	return fmt.Sprintf(`
Your role is an expert editor. You will be given the full synopsis of a story, the original text of a specific chapter's synopsis, and a transcript of a discussion about that chapter.
Your task is to rewrite the specific chapter's synopsis based on the conclusions of the discussion, while maintaining consistency with the full synopsis.

Follow these steps precisely:
1.  Read the **Full Synopsis** to understand the overall story context.
2.  Read the **Original Chapter Synopsis** to understand its starting point.
3.  Read the **Discussion Transcript** to understand the key decisions, additions, or changes that were agreed upon for this specific chapter.
4.  Synthesize the conclusions from the discussion.
5.  Rewrite the original chapter synopsis to integrate these conclusions seamlessly. Preserve the original tone and style. Do not add any new ideas that were not mentioned in the discussion.
6.  Return ONLY the final, rewritten chapter synopsis. Do not add any conversational preamble, explanations, or summaries. The output must be only the complete, updated text of the chapter's synopsis.

**Full Story Synopsis (for context):**
---
%s
---

**Original Chapter Synopsis (the text to be updated):**
---
%s
---

**Discussion Transcript (the source of changes):**
---
%s
---

**Rewritten Chapter Synopsis:**
`, fullSynopsis, originalContent, thread)
}
