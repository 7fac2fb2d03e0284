package inference

import (
	"context"

	"github.com/openai/openai-go/v3"
)

// Inferencer runs a single text generation call. params may carry model,
// temperature and token overrides; nil means provider defaults.
type Inferencer interface {
	Infer(ctx context.Context, params *openai.ChatCompletionNewParams, system, user string) (string, error)
}

// Embedder turns texts into vectors of a fixed, model-determined dimension.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float64, error)
}

// Result is the tagged outcome of a generation call that may answer with
// either text or an image. Exactly one of the fields is populated; failures
// travel on the error return, never inside Result.
type Result struct {
	Text  string
	Image []byte
}

// IsImage reports whether the model answered with inline image bytes.
func (r Result) IsImage() bool { return len(r.Image) > 0 }

// Illustrator generates an image from a prompt, optionally editing a source
// image, without exposing the provider's response shape to callers.
type Illustrator interface {
	Illustrate(ctx context.Context, prompt string, source []byte) (Result, error)
}
