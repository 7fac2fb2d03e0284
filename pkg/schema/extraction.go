package schema

// ChapterExtraction is the first half of a chapter breakdown: what the
// chapter is about, pulled out of the project synopsis before any pages or
// scenes are written.
type ChapterExtraction struct {
	Title      string   `json:"title" jsonschema_description:"The chapter heading exactly as it appears in the synopsis"`
	Summary    string   `json:"summary" jsonschema_description:"A faithful summary of the chapter's plot, in the language of the source text"`
	KeyEvents  []string `json:"key_events" jsonschema_description:"The chapter's events in story order"`
	Characters []string `json:"characters" jsonschema_description:"Names of characters appearing in this chapter"`
	Setting    string   `json:"setting,omitempty" jsonschema_description:"Where and when the chapter takes place, if stated"`
}
