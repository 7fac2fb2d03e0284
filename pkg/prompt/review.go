package prompt

import (
	"fmt"
	"strings"
)

// Review kinds.
const (
	ReviewGeneral   = "general"
	ReviewProofread = "proofread"
)

// GeneralReview reviews a text that fits in a single call.
func GeneralReview(rules, text string) string {
	return fmt.Sprintf("%sהמשימה שלך היא לבצע ביקורת ספרותית מקיפה על הסיפור המלא המצורף. התייחס לעלילה, לדמויות, לקצב, לעקביות ולסגנון.\nהסיפור המלא לבדיקה:\n%s", rules, text)
}

// Proofread fixes spelling, grammar and punctuation over a full text.
func Proofread(text string) string {
	return fmt.Sprintf("בצע הגהה על הטקסט המלא הבא ותקן שגיאות כתיב, דקדוק ופיסוק:\n\n%s", text)
}

// ReviewChunk reviews one slice of a long text. Rules only apply to the
// general review; proofreading is mechanical.
func ReviewChunk(kind, rules, text string) string {
	if kind == ReviewGeneral {
		return fmt.Sprintf("%sבצע ביקורת כללית על הקטע: %s", rules, text)
	}
	return fmt.Sprintf("בצע הגהה על הקטע: %s", text)
}

// SynthesizeReview merges per-chunk findings into one report.
func SynthesizeReview(kind string, parts []string) string {
	label := "כללי"
	if kind == ReviewProofread {
		label = "הגהה"
	}
	joined := strings.Join(parts, "\n\n---\n\n")
	return fmt.Sprintf("אחד את ממצאי הביקורת הבאים לדוח אחיד (%s):\n%s", label, joined)
}

// ReviewDiscussion continues a conversation about a finished report.
func ReviewDiscussion(inputText, result, question string) string {
	return fmt.Sprintf(`אתה מנהל דיון על דוח ביקורת שכתבת. ענה על שאלת המשתמש בהתבסס על הטקסט המקורי ועל הדוח.
הטקסט המקורי שנבדק:
---
%s
---
דוח הביקורת שכתבת:
---
%s
---
השאלה החדשה של המשתמש: %s`, inputText, result, question)
}

// ReviewUpdate rewrites a report after a discussion surfaced mistakes in it.
func ReviewUpdate(inputText, result, discussion string) string {
	return fmt.Sprintf(`אתה עורך מומחה המתקן דוח ביקורת בעקבות דיון שחשף בו טעויות.
הטקסט המקורי שנבדק:
---
%s
---
דוח הביקורת הישן והשגוי שכתבת:
---
%s
---
תמלול הדיון שבו התגלו הטעויות:
---
%s
---
אנא כתוב גרסה חדשה, מתוקנת ומשופרת של דוח הביקורת. החזר רק את הדוח המעודכן, ללא הקדמות.`, inputText, result, discussion)
}
