package fidelity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const original = `דני יצא מהבית בבוקר קר.
הוא פגש את רותי ליד הנהר.
יחד הם מצאו את המפה הישנה.`

func TestCheckHeadingsOnlyIsPreserved(t *testing.T) {
	divided := `פרק 1: הבוקר
דני יצא מהבית בבוקר קר.
הוא פגש את רותי ליד הנהר.
פרק 2: המפה
יחד הם מצאו את המפה הישנה.`

	report := Check(original, divided)
	assert.True(t, report.Preserved, report.String())
	assert.Empty(t, report.MissingWords)
	assert.Empty(t, report.AddedWords)
}

func TestCheckDetectsDroppedContent(t *testing.T) {
	divided := `פרק 1: הבוקר
דני יצא מהבית בבוקר קר.
פרק 2: המפה
יחד הם מצאו את המפה הישנה.`

	report := Check(original, divided)
	require.False(t, report.Preserved)
	assert.Contains(t, report.MissingWords, "רותי")
}

func TestCheckDetectsInventedContent(t *testing.T) {
	divided := `פרק 1
דני יצא מהבית בבוקר קר והרגיש מאושר מאוד.
הוא פגש את רותי ליד הנהר.
יחד הם מצאו את המפה הישנה.`

	report := Check(original, divided)
	require.False(t, report.Preserved)
	assert.Contains(t, report.AddedWords, "מאושר")
}

func TestCheckIgnoresPunctuationAndSpacing(t *testing.T) {
	divided := "פרק 1:\nדני יצא מהבית, בבוקר קר!\nהוא פגש את רותי ליד הנהר.\n\nיחד הם מצאו את המפה הישנה"
	report := Check(original, divided)
	assert.True(t, report.Preserved, report.String())
}

func TestCheckHebrewLetterHeadings(t *testing.T) {
	divided := "פרק א: פתיחה\n" + original
	report := Check(original, divided)
	assert.True(t, report.Preserved, report.String())
}

func TestReportString(t *testing.T) {
	ok := Report{Preserved: true}
	assert.Contains(t, ok.String(), "preserves")

	bad := Report{MissingWords: []string{"א", "ב"}, AddedWords: []string{"ג"}}
	assert.Contains(t, bad.String(), "2 words missing")
	assert.Contains(t, bad.String(), "1 words added")
}
