// Package prompt builds every model-facing prompt in one place. Handlers
// assemble context and fetch rules; this package owns the wording.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"quill/pkg/assemble"
	"quill/pkg/store"
)

// Write kinds a chat request can carry. Free requests fall through to the
// generic prompt; division and breakdown get dedicated builders.
const (
	KindFree             = "free"
	KindDivideSynopsis   = "divide_synopsis"
	KindBreakdownChapter = "breakdown_chapter"
)

// Chat modes. Persona only applies to brainstorm and write.
const (
	ModeBrainstorm = "brainstorm"
	ModeWrite      = "write"
	ModeReview     = "review"
)

// Personas.
const (
	PersonaPartner   = "partner"
	PersonaAssistant = "assistant"
)

// RulesPreamble renders the enforced rules as an absolute-obedience preamble.
// Warn-mode and disabled rules never reach the model; they exist for the
// author's own reference.
func RulesPreamble(rules []store.Rule) string {
	var enforced []string
	for _, r := range rules {
		if r.Mode == store.ModeEnforce {
			enforced = append(enforced, r.Text)
		}
	}
	if len(enforced) == 0 {
		return ""
	}
	return "עליך לציית לכללים הבאים באופן מוחלט ומדויק:\n- " + strings.Join(enforced, "\n- ") + "\n\n"
}

// ProseMaster is the standing instruction for prose projects. It bans every
// visual-media concept so a model that has seen the comic prompts never
// leaks frames or camera directions into a novel.
func ProseMaster() string {
	return `תפקידך הוא לשמש כעוזר מקצועי לסופר, המתמחה בכתיבת רומני פרוזה. כל המחשבה והפלט שלך חייבים להיות בסגנון ספרותי.
הטקסט ב'קובץ כללי' מהווה את הבסיס וההקשר של עולם הסיפור. עליך להתייחס למידע הקיים בו כאמת המוחלטת של הסיפור עד כה. כל תוכן חדש שאתה יוצר חייב להיות עקבי והמשכי לבסיס זה.
מכיוון שזהו פרויקט פרוזה, עליך להתעלם ולהימנע לחלוטין מכל קונספט של מדיה ויזואלית. חל איסור מוחלט להשתמש במונחים כמו 'פריימים', 'פאנלים', 'תסריט למאייר', 'זוויות מצלמה' או דיאלוג בפורמט של תסריט.

`
}

func Persona(persona string) string {
	if persona == PersonaAssistant {
		return "הפרסונה שלך היא 'עוזר ישיר'. תפקידך להיות תמציתי ומדויק.\n\n"
	}
	return "הפרסונה שלך היא 'שותף יצירתי מקצועי'. חשוב ברמה גבוהה והצע רעיונות מקוריים.\n\n"
}

// Preamble composes the standing instructions for one request: rules first,
// then the prose master prompt for prose projects, then the persona for the
// creative modes.
func Preamble(rules []store.Rule, projectKind, mode, persona string) string {
	var sb strings.Builder
	sb.WriteString(RulesPreamble(rules))
	if projectKind == store.KindProse {
		sb.WriteString(ProseMaster())
	}
	if mode == ModeBrainstorm || mode == ModeWrite {
		sb.WriteString(Persona(persona))
	}
	return sb.String()
}

// RenderContext flattens an assembled bundle in reading order: attached
// files, then notes material (a chapter focus replaces retrieval slices),
// then the conversation history.
func RenderContext(b assemble.Bundle) string {
	var sb strings.Builder
	sb.WriteString(b.Files)
	if b.ChapterFocus != "" {
		sb.WriteString(b.ChapterFocus)
	} else {
		sb.WriteString(b.Notes)
	}
	sb.WriteString(b.History)
	return sb.String()
}

// Free is the generic chat prompt: everything gathered so far, then the
// user's request.
func Free(preamble, context, request string) string {
	return fmt.Sprintf("%s%s\n\nבהתבסס על כל ההקשר שסופק, ענה על הבקשה הבאה: %s", preamble, context, request)
}

// ComicDivision asks for the synopsis divided into exactly numChapters
// chapters by inserting headings only. The preservation contract is spelled
// out in full because models love to summarize.
func ComicDivision(synopsis string, numChapters int, preamble, context string) string {
	return fmt.Sprintf(`%s%sYour task is to act as a literary editor and divide the following synopsis into exactly %d chapters. You must do this by ONLY inserting chapter headings (e.g., 'פרק 1:') into the original text.

**CRITICAL INSTRUCTIONS TO FOLLOW EXACTLY:**

1.  **PRESERVE ALL CONTENT:** You are strictly forbidden from summarizing, editing, rewriting, shortening, or altering the original content in any way. Your final output MUST contain 100%% of the original text.
2.  **NARRATIVE LOGIC:** The division must be based on narrative logic. A chapter is a dramatic unit, not a measure of length.
3.  **STRUCTURAL HINT:** The original text may be divided into sections with letters (א, ב, ג). Use these as strong hints for logical breaks.
4.  **FINAL VERIFICATION:** Before you output the text, double-check that the last sentence of your output is identical to the last sentence of the original input text.
5.  **NO PREAMBLE:** Do not add any conversational text or preamble to your response. The response must begin directly with "פרק 1...".

**The full text to be divided is below:**
---
%s
`, preamble, context, numChapters, synopsis)
}

// ProseDivision divides a prose synopsis into chapters sized by projected
// word count rather than a fixed chapter count.
func ProseDivision(synopsis string, minWords, maxWords int, preamble, context string) string {
	return fmt.Sprintf(`%s%sYour task is to act as a professional literary editor and divide the following prose synopsis into logical chapters.

**CRITICAL INSTRUCTIONS TO FOLLOW EXACTLY:**

1.  **PRIMARY GOAL: NARRATIVE COHESION.** Your main goal is to find the most natural breaking points in the story. A chapter should represent a complete scene, a significant shift in time or location, or a point of high tension. The narrative flow is the most important factor.

2.  **SECONDARY GOAL: WORD COUNT GUIDELINE.** As a strong guideline, you should aim to create chapters that, when fully written, would likely be between %d and %d words long. This is an estimation. You must use your literary judgment to balance this guideline with the narrative needs. It is better to have a slightly shorter or longer chapter that ends at a logical point, than a chapter of perfect length that stops awkwardly.

3.  **EXECUTION:** You must perform this task by ONLY inserting chapter headings (e.g., 'פרק 1:', 'פרק 2: שם הפרק') into the original text. You are strictly forbidden from summarizing, editing, or altering the original content in any way.

4.  **NO PREAMBLE:** Do not add any conversational text or preamble. Your response must begin directly with the first word of the divided synopsis (e.g., it must start with "פרק 1...").

**The full text to be divided is below:**
---
%s
`, preamble, context, minWords, maxWords, synopsis)
}

// ExtractChapter is the first call of a chapter breakdown: pull the single
// chapter's material out of the full synopsis. Pairs with the structured
// output format in pkg/schema.
func ExtractChapter(chapterTitle, fullSynopsis string) string {
	return fmt.Sprintf("From the full synopsis, extract only the text for the chapter titled '%s'.\n\nSYNOPSIS:\n%s", chapterTitle, fullSynopsis)
}

// ComicBreakdown turns one chapter's synopsis into a full comic script with
// a fixed page and frame budget. Every frame must carry text.
func ComicBreakdown(preamble, context, chapterSynopsis string, pagesPerChapter, framesPerPage int) string {
	return fmt.Sprintf(`%s%sלהלן תקציר של פרק בקומיקס:
---
%s
---
המשימה שלך היא לכתוב את התסריט המפורט עבור הפרק. עליך לפרק את התקציר לעמודים ופריימים, לפי מבנה של %d עמודים, ו-%d פריימים לעמוד.

**כלל ברזל: בכל פריים חייב להופיע טקסט כלשהו, בין אם הרהור או דיאלוג. אין ליצור פריימים ללא טקסט.**

הקפד על הפורמט: מספר פריים, אחריו טקסט (אם יש הרהור, ציין 'הרהור:'), ובשורה נפרדת תיאור ויזואלי בסוגריים מרובעים.
דוגמה (אם מתחילים מפריים 19): 19.
הרהור: עוד הפרעה...
[קצין במדים יושב במשרד מפואר ומביט בטלפון המצלצל].

החזר אך ורק את התסריט המעוצב, ללא כל משפט פתיחה או סיכום.`, preamble, context, chapterSynopsis, pagesPerChapter, framesPerPage)
}

// ProseBreakdown turns one chapter's synopsis into a scene-by-scene outline.
func ProseBreakdown(preamble, context, chapterSynopsis string) string {
	return fmt.Sprintf(`%s%sבהתבסס על תקציר הפרק הבא, כתוב מתווה (Outline) מפורט של הפרק.
חלק את המתווה לסצנות הגיוניות.

**הקפד על הפורמט הבא עבור כל סצנה, באופן מדויק:**
1.  כותרת הסצנה בשורה נפרדת, מודגשת ב-2 כוכביות (לדוגמה: **סצנה 1: הכותרת**).
2.  בשורה מתחת לכותרת, תיאור קצר בן מספר משפטים של ההתרחשות המרכזית, התפתחות הדמויות והאווירה.
3.  הפרד בין כל סצנה לסצנה הבאה בשורת רווח אחת.

**דוגמה לפורמט:**
**סצנה 1: שחר של יום חדש**
תיאור מפורט של הסצנה הראשונה, מה קורה ומי הדמויות המעורבות.

**סצנה 2: שיחה מפתיעה**
תיאור מפורט של הסצנה השנייה.

החזר רק את טקסט המתווה בפורמט זה, ללא כל הקדמה או סיכום.

**תקציר הפרק:**
---
%s
---
`, preamble, context, chapterSynopsis)
}

// ImageRewrite asks the text model to turn a raw user description into a
// prompt an image model will accept.
func ImageRewrite(raw string) string {
	return fmt.Sprintf(`
You are a "prompt engineer". You will receive an image description from a user. Your task is to rewrite it into a detailed, visual, and safe prompt for an image generation model.
Focus on visual characteristics: appearance, clothing, environment, lighting, and style.
Instead of using potentially sensitive words directly, describe the subject's apparent age and features.
The goal is to honor the user's intent while ensuring the prompt is safe for generation.
Return ONLY the rewritten prompt, without any preamble.

The user's original description is: '%s'
`, raw)
}

// HistoryTag prefixes a stored question so the transcript shows which mode
// produced it.
func HistoryTag(mode, writeKind string) string {
	if mode == ModeWrite {
		return fmt.Sprintf("【%s:%s】", mode, writeKind)
	}
	return fmt.Sprintf("【%s】", mode)
}

var divisionStartRx = regexp.MustCompile(`פרק\s+\d+`)

// CleanDivisionOutput drops any conversational preamble a division response
// sneaks in before its first chapter heading. Output with no heading at all
// is returned trimmed, for the caller to flag.
func CleanDivisionOutput(s string) string {
	loc := divisionStartRx.FindStringIndex(s)
	if loc == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[loc[0]:])
}
