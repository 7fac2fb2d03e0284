package inference

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// GeminiClient implements Inferencer, Embedder and Illustrator on top of the
// Gemini API.
type GeminiClient struct {
	client     *genai.Client
	apiKey     string
	model      string
	embedModel string
	imageModel string
}

// NewGeminiClient creates a new Gemini-backed client.
func NewGeminiClient(apiKey, model string) (*GeminiClient, error) {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{
		client:     client,
		apiKey:     apiKey,
		model:      model,
		embedModel: "gemini-embedding-001",
		imageModel: "gemini-2.5-flash-image-preview",
	}, nil
}

func (g *GeminiClient) SetModel(model string) {
	g.model = model
}

func (g *GeminiClient) SetEmbedModel(model string) {
	g.embedModel = model
}

func (g *GeminiClient) SetImageModel(model string) {
	g.imageModel = model
}

func (g *GeminiClient) ChangeConfig(config *genai.ClientConfig) {
	client, err := genai.NewClient(context.Background(), config)
	if err != nil {
		return
	}
	g.client = client
}

// Infer sends text to the Gemini generate-content endpoint and returns the output.
func (g *GeminiClient) Infer(ctx context.Context, params *openai.ChatCompletionNewParams, system, user string) (string, error) {
	if params == nil {
		params = new(openai.ChatCompletionNewParams)
	}
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(cmp.Or(params.MaxCompletionTokens.Value, 4096)),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleModel)
	}
	if params.Temperature.Valid() {
		config.Temperature = genai.Ptr(float32(params.Temperature.Value))
	}

	result, err := g.client.Models.GenerateContent(
		ctx,
		cmp.Or(params.Model, g.model),
		genai.Text(user),
		config,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return result.Text(), nil
}

// EmbedMany embeds all texts in one request, preserving input order.
func (g *GeminiClient) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}
	resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embeddings count mismatch: sent %d, got %d", len(texts), len(resp.Embeddings))
	}
	out := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vec := make([]float64, len(e.Values))
		for j, v := range e.Values {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}

// Illustrate generates an image from the prompt, optionally editing a source
// image. The provider's response parts are folded into a tagged Result so
// callers never touch the SDK's shapes.
func (g *GeminiClient) Illustrate(ctx context.Context, prompt string, source []byte) (Result, error) {
	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if len(source) > 0 {
		parts = append(parts, genai.NewPartFromBytes(source, "image/png"))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.imageModel, contents, nil)
	if err != nil {
		return Result{}, fmt.Errorf("failed to generate image: %w", err)
	}

	var res Result
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				res.Image = part.InlineData.Data
				return res, nil
			}
			if part.Text != "" {
				res.Text += part.Text
			}
		}
	}
	if res.Text == "" {
		return Result{}, errors.New("no image or text in response")
	}
	return res, nil
}
