package schema

import (
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
)

func generateSchema[T any]() any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return r.Reflect(v)
}

var ChapterExtractionSchema = generateSchema[ChapterExtraction]()

// ChapterExtractionResponseFormat constrains the extraction step of a chapter
// breakdown to strict JSON, so the second step gets clean structured input
// instead of free prose it has to re-parse.
func ChapterExtractionResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	p := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "chapter_extraction",
		Description: openai.String("Structured summary of a single chapter extracted from a story synopsis"),
		Schema:      ChapterExtractionSchema,
		Strict:      openai.Bool(true),
	}
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: p},
	}
}
