// Package fidelity checks that a model-divided synopsis still contains the
// original text. Division is supposed to only insert chapter headings; any
// word of the source that went missing or changed is a violation worth
// surfacing to the author before they trust the result.
package fidelity

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/aryann/difflib"
)

var headingLineRx = regexp.MustCompile(`(?m)^\s*פרק\s+[0-9א-ת]+[^\n]*$`)

// Report summarizes how faithfully a division preserved its source.
type Report struct {
	// Preserved is true when every word of the original survives in order.
	Preserved bool
	// MissingWords are source words absent from the division.
	MissingWords []string
	// AddedWords are non-heading words the model invented.
	AddedWords []string
}

func (r Report) String() string {
	if r.Preserved {
		return "division preserves the original text"
	}
	return fmt.Sprintf("division altered the text: %d words missing, %d words added",
		len(r.MissingWords), len(r.AddedWords))
}

// Check compares the original synopsis with its divided form. Heading lines
// are stripped from the division first, so only real content changes count.
func Check(original, divided string) Report {
	stripped := headingLineRx.ReplaceAllString(divided, "")

	src := contentWords(original)
	dst := contentWords(stripped)

	report := Report{Preserved: true}
	for _, rec := range difflib.Diff(src, dst) {
		switch rec.Delta {
		case difflib.LeftOnly:
			report.Preserved = false
			report.MissingWords = append(report.MissingWords, rec.Payload)
		case difflib.RightOnly:
			report.Preserved = false
			report.AddedWords = append(report.AddedWords, rec.Payload)
		}
	}
	return report
}

// contentWords tokenizes to bare words, dropping whitespace and punctuation
// runs so formatting changes around inserted headings do not count as
// alterations.
func contentWords(s string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'' {
			cur = append(cur, r)
		} else {
			flush()
		}
	}
	flush()
	return out
}
