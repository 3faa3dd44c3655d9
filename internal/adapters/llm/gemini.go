package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"

	"github.com/ylol-app/ylol/internal/domain"
	"github.com/ylol-app/ylol/internal/observability"
)

type GeminiConfig struct {
	Project  string
	Location string
	Model    string
}

// GeminiClient is a domain.ResponseService backed by Gemini on Vertex AI.
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiClient creates a Vertex AI (Gemini) client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.Project == "" || cfg.Location == "" {
		return nil, fmt.Errorf("gemini client: project and location must be set")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &GeminiClient{
		client:    client,
		modelName: cfg.Model,
	}, nil
}

// Generate implements domain.ResponseService.
func (g *GeminiClient) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	ctx, span := observability.Tracer().Start(ctx, "llm.gemini.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", g.modelName),
		attribute.String("mode", string(req.Mode)),
		attribute.Int("attachments", len(req.Attachments)),
	)

	contents := toContents(req)
	if len(contents) == 0 {
		return "", fmt.Errorf("gemini: nothing to send")
	}

	temp := float32(0.8)
	topP := float32(0.95)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(BuildSystemPrompt(req.Mode), genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   1024,
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		err = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.LoggerFromContext(ctx).Warn("gemini generate failed", "model", g.modelName, "error", err)
		return "", err
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned empty text", domain.ErrModelUnavailable)
	}
	return text, nil
}

// toContents maps the conversation to Gemini turns. Leading assistant turns
// (the greeting) are dropped so the exchange starts with the user, consecutive
// turns of the same author are merged, and images ride on the last user turn.
func toContents(req domain.GenerateRequest) []*genai.Content {
	msgs := req.Context
	for len(msgs) > 0 && msgs[0].Author != domain.AuthorUser {
		msgs = msgs[1:]
	}

	lastUser := -1
	for i, m := range msgs {
		if m.Author == domain.AuthorUser {
			lastUser = i
		}
	}

	var (
		contents []*genai.Content
		current  *genai.Content
	)
	for i, m := range msgs {
		role := genai.Role(genai.RoleUser)
		if m.Author == domain.AuthorAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		if m.Content != "" {
			parts = append(parts, genai.NewPartFromText(m.Content))
		}
		if i == lastUser {
			for _, a := range req.Attachments {
				parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
			}
		}
		if len(parts) == 0 {
			continue
		}

		if current != nil && current.Role == string(role) {
			current.Parts = append(current.Parts, parts...)
			continue
		}
		current = genai.NewContentFromParts(parts, role)
		contents = append(contents, current)
	}
	return contents
}

// classify maps transport and API failures onto the domain error taxonomy.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound, http.StatusServiceUnavailable:
			return fmt.Errorf("%w: %s", domain.ErrModelUnavailable, apiErr.Message)
		default:
			return &domain.ServerError{Code: apiErr.Code, Message: apiErr.Message}
		}
	}

	// anything without an API status never got a server answer: dial
	// failures, timeouts, resets
	return fmt.Errorf("%w: %v", domain.ErrNetwork, err)
}
