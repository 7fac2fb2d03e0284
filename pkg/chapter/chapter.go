// Package chapter implements the heading based segmentation of synopsis and
// notes text. Headings follow the convention the division prompts demand:
// "פרק N" at the start of a heading line, optionally followed by a title and
// punctuation. The parsing is deliberately the same cheap regex heuristic the
// app has always used; it is not a structural guarantee.
package chapter

import (
	"regexp"
	"strings"
	"unicode"
)

// Segment is one chapter of a divided text. Title is the full matched heading
// line; Content is the raw span between this heading and the next one (or end
// of text), untrimmed, so that concatenating Title+Content over all segments
// reproduces the original text exactly. Callers trim for display.
type Segment struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

var (
	// headingRx matches a numbered chapter heading up to end of line.
	headingRx = regexp.MustCompile(`פרק\s+\d+[^\n]*`)

	// anyHeadingRx matches a chapter marker with a numeric or Hebrew-letter
	// identifier. Used to find where an extracted chapter ends.
	anyHeadingRx = regexp.MustCompile(`פרק\s+[0-9א-ת]+`)

	// refRx picks an explicit chapter reference out of a free-text request,
	// e.g. "תן לי את פרק 2" or "עיין בפרק ה".
	refRx = regexp.MustCompile(`(?:עיין\s+בפרק|פרק)\s+([0-9א-ת]+)`)
)

// Split locates every numbered heading and cuts the text into segments
// between consecutive headings. Text before the first heading is dropped from
// the segment list (it is not a chapter). A text with no headings yields nil,
// which callers read as "not yet divided".
func Split(text string) []Segment {
	locs := headingRx.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	segs := make([]Segment, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segs = append(segs, Segment{
			Title:   text[loc[0]:loc[1]],
			Content: text[loc[1]:end],
		})
	}
	return segs
}

// Extract returns the raw content of the chapter with the given identifier:
// everything after the heading line, up to the next chapter marker or end of
// text. The identifier is matched literally (regexp-quoted), so metacharacters
// in it cannot corrupt the pattern, and the rune following it must not be
// another identifier rune, so chapter 1 never matches inside chapter 10.
//
// If the same identifier occurs more than once (say, referenced in passing
// before the actual heading), the first occurrence wins. That is a heuristic
// inherited from the heading convention, not a semantic guarantee.
func Extract(text, id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	startRx, err := regexp.Compile(`פרק\s+` + regexp.QuoteMeta(id))
	if err != nil {
		return "", false
	}

	from := 0
	for {
		loc := startRx.FindStringIndex(text[from:])
		if loc == nil {
			return "", false
		}
		end := from + loc[1]
		if isIdentRune(nextRune(text, end)) {
			// Identifier continues past the requested one; keep looking.
			from = end
			continue
		}

		// Content begins at the end of the heading line.
		contentStart := end
		if nl := strings.IndexByte(text[end:], '\n'); nl >= 0 {
			contentStart = end + nl
		} else {
			contentStart = len(text)
		}

		contentEnd := len(text)
		if next := anyHeadingRx.FindStringIndex(text[contentStart:]); next != nil {
			contentEnd = contentStart + next[0]
		}
		return text[contentStart:contentEnd], true
	}
}

// FindRef reports the chapter identifier explicitly referenced in a free-text
// query, if any.
func FindRef(query string) (string, bool) {
	m := refRx.FindStringSubmatch(query)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func nextRune(s string, i int) rune {
	if i >= len(s) {
		return 0
	}
	for _, r := range s[i:] {
		return r
	}
	return 0
}

func isIdentRune(r rune) bool {
	if r >= 'א' && r <= 'ת' {
		return true
	}
	return unicode.IsDigit(r)
}
