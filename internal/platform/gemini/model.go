package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/datafarmer/datafarmer/internal/config"
	"github.com/datafarmer/datafarmer/internal/generation"
	"google.golang.org/genai"
)

// ModelConfig selects and authenticates the remote model.
type ModelConfig struct {
	Backend generation.Backend
	Model   string

	// APIKey authenticates the direct API backend.
	APIKey string

	// ProjectID and Location address the managed backend.
	ProjectID string
	Location  string
}

// ModelConfigFromSettings builds a ModelConfig from the application configuration.
func ModelConfigFromSettings(cfg *config.Config) ModelConfig {
	return ModelConfig{
		Backend:   generation.Backend(cfg.Gemini.Backend),
		Model:     cfg.Gemini.Model,
		APIKey:    cfg.Gemini.APIKey,
		ProjectID: cfg.GCP.ProjectID,
		Location:  cfg.GCP.Location,
	}
}

func (c ModelConfig) validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	backend, err := generation.ParseBackend(string(c.Backend))
	if err != nil {
		return err
	}

	switch backend {
	case generation.BackendGeminiAPI:
		if c.APIKey == "" {
			return fmt.Errorf("%w: API key is required for the %q backend", generation.ErrInvalidConfig, backend)
		}
	case generation.BackendVertex:
		if c.ProjectID == "" || c.Location == "" {
			return fmt.Errorf("%w: project ID and location are required for the %q backend",
				generation.ErrInvalidConfig, backend)
		}
	}
	return nil
}

// contentGenerator is the subset of *genai.Models used by Model.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Model implements generation.Model on top of a genai client.
// It holds no per-request state and is safe for concurrent use.
type Model struct {
	name    string
	backend generation.Backend
	models  contentGenerator
	logger  *slog.Logger
}

var _ generation.Model = (*Model)(nil)

// NewModel creates a Model for the configured backend.
//
// Parameters:
//   - ctx: Context for client construction (credential discovery)
//   - cfg: Backend, model name and credentials
//   - logger: A structured logger for operation logging
//
// Returns:
//   - A ready Model or an error wrapping generation.ErrInvalidConfig
func NewModel(ctx context.Context, cfg ModelConfig, logger *slog.Logger) (*Model, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cc := &genai.ClientConfig{}
	if cfg.Backend == generation.BackendVertex {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.ProjectID
		cc.Location = cfg.Location
	} else {
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create genai client: %w", generation.ErrInvalidConfig, err)
	}

	logger.InfoContext(ctx, "Initialized Gemini model",
		"model", cfg.Model,
		"backend", string(cfg.Backend))

	m := newModel(cfg.Model, client.Models, logger)
	m.backend = cfg.Backend
	return m, nil
}

func newModel(name string, models contentGenerator, logger *slog.Logger) *Model {
	return &Model{
		name:   name,
		models: models,
		logger: logger.With("component", "gemini", "model", name),
	}
}

// Name returns the model identifier.
func (m *Model) Name() string {
	return m.name
}

// Generate performs a single GenerateContent call. The prompt is sent first,
// followed by one inline part per attachment blob.
func (m *Model) Generate(
	ctx context.Context,
	content generation.Content,
	opts generation.GenerationOptions,
) (string, error) {
	if opts.Retrieval != nil && m.backend == generation.BackendGeminiAPI {
		return "", fmt.Errorf("%w: rag retrieval requires the vertex backend", generation.ErrGenerationFailed)
	}

	cfg, err := buildConfig(opts)
	if err != nil {
		return "", err
	}

	parts := make([]*genai.Part, 0, len(content.Blobs)+1)
	parts = append(parts, genai.NewPartFromText(content.Prompt))
	for _, blob := range content.Blobs {
		parts = append(parts, genai.NewPartFromBytes(blob.Data, blob.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	m.logger.DebugContext(ctx, "Making Gemini API call",
		"prompt_length", len(content.Prompt),
		"attachments", len(content.Blobs))

	resp, err := m.models.GenerateContent(ctx, m.name, contents, cfg)
	if err != nil {
		return "", classifyError(err)
	}
	return responseText(resp)
}

// buildConfig maps generation options onto the SDK request config.
func buildConfig(opts generation.GenerationOptions) (*genai.GenerateContentConfig, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      opts.Temperature,
		TopP:             opts.TopP,
		MaxOutputTokens:  opts.MaxOutputTokens,
		ResponseMIMEType: opts.ResponseMIMEType,
	}

	if opts.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemInstruction, genai.RoleUser)
	}

	if len(opts.ResponseSchema) > 0 {
		schema, err := decodeSchema(opts.ResponseSchema)
		if err != nil {
			return nil, err
		}
		cfg.ResponseSchema = schema
	}

	for _, s := range opts.SafetySettings {
		cfg.SafetySettings = append(cfg.SafetySettings, &genai.SafetySetting{
			Category:  genai.HarmCategory(strings.ToUpper(s.Category)),
			Threshold: genai.HarmBlockThreshold(strings.ToUpper(s.Threshold)),
		})
	}

	if opts.Retrieval != nil {
		cfg.Tools = []*genai.Tool{{Retrieval: retrievalTool(opts.Retrieval)}}
	}
	return cfg, nil
}

// retrievalTool builds a Vertex RAG store retrieval. File ids scope the first
// (and then only) corpus.
func retrievalTool(r *generation.Retrieval) *genai.Retrieval {
	store := &genai.VertexRAGStore{}
	for i, corpus := range r.Corpora {
		resource := &genai.VertexRAGStoreRAGResource{RAGCorpus: corpus}
		if i == 0 {
			resource.RAGFileIDs = r.FileIDs
		}
		store.RAGResources = append(store.RAGResources, resource)
	}

	if r.TopK > 0 || r.VectorDistanceThreshold != nil {
		rc := &genai.RAGRetrievalConfig{}
		if r.TopK > 0 {
			topK := r.TopK
			rc.TopK = &topK
		}
		if r.VectorDistanceThreshold != nil {
			threshold := *r.VectorDistanceThreshold
			rc.Filter = &genai.RAGRetrievalConfigFilter{VectorDistanceThreshold: &threshold}
		}
		store.RAGRetrievalConfig = rc
	}
	return &genai.Retrieval{VertexRAGStore: store}
}

// classifyError wraps SDK errors. Client-side API errors other than rate
// limiting are reported as generation failures, everything else as transient.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", generation.ErrTransientFailure, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
			return fmt.Errorf("%w: API error %d: %s", generation.ErrGenerationFailed, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("%w: API error %d: %s", generation.ErrTransientFailure, apiErr.Code, apiErr.Message)
	}

	return fmt.Errorf("%w: %w", generation.ErrTransientFailure, err)
}

var blockingFinishReasons = map[genai.FinishReason]bool{
	genai.FinishReasonSafety:            true,
	genai.FinishReasonBlocklist:         true,
	genai.FinishReasonProhibitedContent: true,
	genai.FinishReasonSPII:              true,
}

// responseText extracts the text of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, fb.BlockReason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if blockingFinishReasons[candidate.FinishReason] {
		return "", fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, candidate.FinishReason)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty content in response (finish reason %s)",
			generation.ErrInvalidResponse, candidate.FinishReason)
	}
	return text, nil
}
