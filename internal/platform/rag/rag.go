// Package rag manages Vertex AI RAG Engine corpora: listing and creating
// corpora, importing Cloud Storage or Drive documents into them and running
// direct retrieval queries. Generation grounded on a corpus goes through the
// generation package's Retrieval option instead.
package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/datafarmer/datafarmer/internal/platform/gcp"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/option"
)

// Defaults used when the caller leaves a setting at zero.
const (
	DefaultEmbeddingModel             = "text-embedding-004"
	DefaultChunkSize                  = 512
	DefaultChunkOverlap               = 100
	DefaultMaxEmbeddingRequestsPerMin = 900
	DefaultTopK                       = 10
	DefaultVectorDistanceThreshold    = 0.5

	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 30 * time.Minute
	listPageSize        = 100
)

// Drive resource types accepted by the import API.
const (
	driveResourceFile   = "RESOURCE_TYPE_FILE"
	driveResourceFolder = "RESOURCE_TYPE_FOLDER"
)

var (
	// ErrUnsupportedSource is returned for import paths that are neither
	// gs:// URIs nor Google Drive file or folder links.
	ErrUnsupportedSource = errors.New("unsupported rag import source")

	// ErrOperationFailed is returned when a long-running operation finishes with an error.
	ErrOperationFailed = errors.New("rag operation failed")

	errOperationPending = errors.New("operation still running")
)

// Corpus is a RAG corpus.
type Corpus struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	CreateTime  string `json:"create_time,omitempty" yaml:"create_time,omitempty"`
}

// File is a document imported into a corpus.
type File struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`
	CreateTime  string `json:"create_time,omitempty" yaml:"create_time,omitempty"`
}

// ID returns the last segment of the file resource name, the form accepted
// as a retrieval file id.
func (f File) ID() string {
	return f.Name[strings.LastIndex(f.Name, "/")+1:]
}

// Chunk is one retrieved context.
type Chunk struct {
	Text              string  `json:"text" yaml:"text"`
	SourceURI         string  `json:"source_uri,omitempty" yaml:"source_uri,omitempty"`
	SourceDisplayName string  `json:"source_display_name,omitempty" yaml:"source_display_name,omitempty"`
	Score             float64 `json:"score" yaml:"score"`
}

// ImportOptions control chunking and embedding rate of an import. Zero
// sizes and rates use the defaults; a negative overlap uses DefaultChunkOverlap.
type ImportOptions struct {
	ChunkSize                  int64
	ChunkOverlap               int64
	MaxEmbeddingRequestsPerMin int64
}

func (o ImportOptions) withDefaults() ImportOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = DefaultChunkOverlap
	}
	if o.MaxEmbeddingRequestsPerMin <= 0 {
		o.MaxEmbeddingRequestsPerMin = DefaultMaxEmbeddingRequestsPerMin
	}
	return o
}

// ImportResult counts the outcome of an import operation.
type ImportResult struct {
	Imported int64
	Failed   int64
	Skipped  int64
}

// Query is a direct retrieval request against one corpus.
type Query struct {
	Text    string
	Corpus  string
	FileIDs []string

	// TopK and VectorDistanceThreshold fall back to DefaultTopK and
	// DefaultVectorDistanceThreshold when zero.
	TopK                    int64
	VectorDistanceThreshold float64
}

// Client talks to the regional Vertex AI endpoint of one project and location.
type Client struct {
	svc          *aiplatform.Service
	project      string
	location     string
	logger       *slog.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewClient creates a RAG client. Without explicit options the Application
// Default Credentials are used against https://{location}-aiplatform.googleapis.com/.
func NewClient(
	ctx context.Context,
	project, location string,
	logger *slog.Logger,
	opts ...option.ClientOption,
) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if project == "" {
		return nil, errors.New("project ID cannot be empty")
	}
	if location == "" {
		return nil, errors.New("location cannot be empty")
	}
	if len(opts) == 0 {
		var err error
		opts, err = gcp.ClientOptions(ctx, project, aiplatform.CloudPlatformScope)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("https://%s-aiplatform.googleapis.com/", location)))
	}

	svc, err := aiplatform.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aiplatform service: %w", err)
	}
	return &Client{
		svc:          svc,
		project:      project,
		location:     location,
		logger:       logger.With("component", "rag", "project_id", project, "location", location),
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
	}, nil
}

func (c *Client) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.project, c.location)
}

// CorpusName expands a bare corpus id into its full resource name.
// Full names are returned unchanged.
func (c *Client) CorpusName(corpus string) string {
	if strings.HasPrefix(corpus, "projects/") {
		return corpus
	}
	return c.parent() + "/ragCorpora/" + corpus
}

// Corpora lists every corpus of the project and location.
func (c *Client) Corpora(ctx context.Context) ([]Corpus, error) {
	var corpora []Corpus
	err := c.svc.Projects.Locations.RagCorpora.List(c.parent()).
		PageSize(listPageSize).
		Pages(ctx, func(page *aiplatform.GoogleCloudAiplatformV1ListRagCorporaResponse) error {
			for _, rc := range page.RagCorpora {
				corpora = append(corpora, corpusFrom(rc))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list rag corpora: %w", err)
	}
	return corpora, nil
}

// CreateCorpus creates a corpus embedded with the publisher model
// embeddingModel (DefaultEmbeddingModel when empty) and waits for it.
func (c *Client) CreateCorpus(ctx context.Context, displayName, embeddingModel string) (*Corpus, error) {
	if strings.TrimSpace(displayName) == "" {
		return nil, errors.New("corpus display name cannot be empty")
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	req := &aiplatform.GoogleCloudAiplatformV1RagCorpus{
		DisplayName: displayName,
		VectorDbConfig: &aiplatform.GoogleCloudAiplatformV1RagVectorDbConfig{
			RagEmbeddingModelConfig: &aiplatform.GoogleCloudAiplatformV1RagEmbeddingModelConfig{
				VertexPredictionEndpoint: &aiplatform.GoogleCloudAiplatformV1RagEmbeddingModelConfigVertexPredictionEndpoint{
					Endpoint: c.parent() + "/publishers/google/models/" + embeddingModel,
				},
			},
		},
	}

	op, err := c.svc.Projects.Locations.RagCorpora.Create(c.parent(), req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create rag corpus %s: %w", displayName, err)
	}
	op, err = c.wait(ctx, op)
	if err != nil {
		return nil, err
	}

	var created aiplatform.GoogleCloudAiplatformV1RagCorpus
	if err := json.Unmarshal(op.Response, &created); err != nil {
		return nil, fmt.Errorf("failed to decode created corpus: %w", err)
	}
	corpus := corpusFrom(&created)

	c.logger.InfoContext(ctx, "Created rag corpus",
		"corpus", corpus.Name,
		"display_name", corpus.DisplayName,
		"embedding_model", embeddingModel)
	return &corpus, nil
}

// Files lists the documents of corpus.
func (c *Client) Files(ctx context.Context, corpus string) ([]File, error) {
	name := c.CorpusName(corpus)
	var files []File
	err := c.svc.Projects.Locations.RagCorpora.RagFiles.List(name).
		PageSize(listPageSize).
		Pages(ctx, func(page *aiplatform.GoogleCloudAiplatformV1ListRagFilesResponse) error {
			for _, rf := range page.RagFiles {
				files = append(files, fileFrom(rf))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list files of %s: %w", name, err)
	}
	return files, nil
}

// ImportFiles imports paths into corpus and waits for the import to finish.
// Paths are either all gs:// URIs or all Google Drive file or folder links.
func (c *Client) ImportFiles(ctx context.Context, corpus string, paths []string, opts ImportOptions) (*ImportResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no paths to import", ErrUnsupportedSource)
	}
	cfg, err := importConfig(paths, opts.withDefaults())
	if err != nil {
		return nil, err
	}

	name := c.CorpusName(corpus)
	req := &aiplatform.GoogleCloudAiplatformV1ImportRagFilesRequest{ImportRagFilesConfig: cfg}
	op, err := c.svc.Projects.Locations.RagCorpora.RagFiles.Import(name, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to import files into %s: %w", name, err)
	}
	op, err = c.wait(ctx, op)
	if err != nil {
		return nil, err
	}

	result, err := decodeImportResult(op.Response)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "Imported rag files",
		"corpus", name,
		"imported", result.Imported,
		"failed", result.Failed,
		"skipped", result.Skipped)
	return result, nil
}

// Retrieve returns the chunks of q.Corpus closest to q.Text.
func (c *Client) Retrieve(ctx context.Context, q Query) ([]Chunk, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, errors.New("retrieval query cannot be empty")
	}
	if q.Corpus == "" {
		return nil, errors.New("retrieval corpus cannot be empty")
	}
	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	threshold := q.VectorDistanceThreshold
	if threshold <= 0 {
		threshold = DefaultVectorDistanceThreshold
	}

	req := &aiplatform.GoogleCloudAiplatformV1RetrieveContextsRequest{
		Query: &aiplatform.GoogleCloudAiplatformV1RagQuery{
			Text: q.Text,
			RagRetrievalConfig: &aiplatform.GoogleCloudAiplatformV1RagRetrievalConfig{
				TopK:   topK,
				Filter: &aiplatform.GoogleCloudAiplatformV1RagRetrievalConfigFilter{VectorDistanceThreshold: threshold},
			},
		},
		VertexRagStore: &aiplatform.GoogleCloudAiplatformV1RetrieveContextsRequestVertexRagStore{
			RagResources: []*aiplatform.GoogleCloudAiplatformV1RetrieveContextsRequestVertexRagStoreRagResource{{
				RagCorpus:  c.CorpusName(q.Corpus),
				RagFileIds: q.FileIDs,
			}},
		},
	}

	resp, err := c.svc.Projects.Locations.RetrieveContexts(c.parent(), req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve contexts: %w", err)
	}

	var chunks []Chunk
	if resp.Contexts != nil {
		for _, rc := range resp.Contexts.Contexts {
			chunks = append(chunks, Chunk{
				Text:              rc.Text,
				SourceURI:         rc.SourceUri,
				SourceDisplayName: rc.SourceDisplayName,
				Score:             rc.Score,
			})
		}
	}
	c.logger.DebugContext(ctx, "Retrieved rag contexts", "chunks", len(chunks), "top_k", topK)
	return chunks, nil
}

// wait polls op until it is done, at a constant interval.
func (c *Client) wait(ctx context.Context, op *aiplatform.GoogleLongrunningOperation) (*aiplatform.GoogleLongrunningOperation, error) {
	backoff := retry.WithMaxDuration(c.pollTimeout, retry.NewConstant(c.pollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if !op.Done {
			c.logger.DebugContext(ctx, "Waiting for rag operation", "operation", op.Name)
			next, err := c.svc.Projects.Locations.Operations.Get(op.Name).Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("failed to poll operation %s: %w", op.Name, err)
			}
			op = next
		}
		if !op.Done {
			return retry.RetryableError(errOperationPending)
		}
		return nil
	})
	if errors.Is(err, errOperationPending) {
		return nil, fmt.Errorf("%w: %s did not finish within %s", ErrOperationFailed, op.Name, c.pollTimeout)
	}
	if err != nil {
		return nil, err
	}
	if op.Error != nil {
		return nil, fmt.Errorf("%w: %s: code %d: %s", ErrOperationFailed, op.Name, op.Error.Code, op.Error.Message)
	}
	return op, nil
}

// importConfig maps import paths onto a single source kind.
func importConfig(paths []string, opts ImportOptions) (*aiplatform.GoogleCloudAiplatformV1ImportRagFilesConfig, error) {
	cfg := &aiplatform.GoogleCloudAiplatformV1ImportRagFilesConfig{
		MaxEmbeddingRequestsPerMin: opts.MaxEmbeddingRequestsPerMin,
		RagFileTransformationConfig: &aiplatform.GoogleCloudAiplatformV1RagFileTransformationConfig{
			RagFileChunkingConfig: &aiplatform.GoogleCloudAiplatformV1RagFileChunkingConfig{
				FixedLengthChunking: &aiplatform.GoogleCloudAiplatformV1RagFileChunkingConfigFixedLengthChunking{
					ChunkSize:    opts.ChunkSize,
					ChunkOverlap: opts.ChunkOverlap,
				},
			},
		},
	}

	var gcs aiplatform.GoogleCloudAiplatformV1GcsSource
	var drive aiplatform.GoogleCloudAiplatformV1GoogleDriveSource
	for _, p := range paths {
		if strings.HasPrefix(p, "gs://") {
			gcs.Uris = append(gcs.Uris, p)
			continue
		}
		id, err := driveResource(p)
		if err != nil {
			return nil, err
		}
		drive.ResourceIds = append(drive.ResourceIds, id)
	}

	switch {
	case len(gcs.Uris) > 0 && len(drive.ResourceIds) > 0:
		return nil, fmt.Errorf("%w: cannot mix Cloud Storage and Drive paths in one import", ErrUnsupportedSource)
	case len(gcs.Uris) > 0:
		cfg.GcsSource = &gcs
	default:
		cfg.GoogleDriveSource = &drive
	}
	return cfg, nil
}

// driveResource parses https://drive.google.com/file/d/{id} and
// https://drive.google.com/drive/folders/{id} links.
func driveResource(raw string) (*aiplatform.GoogleCloudAiplatformV1GoogleDriveSourceResourceId, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host != "drive.google.com" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, raw)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		switch {
		case segments[i] == "folders":
			return &aiplatform.GoogleCloudAiplatformV1GoogleDriveSourceResourceId{
				ResourceId: segments[i+1], ResourceType: driveResourceFolder,
			}, nil
		case segments[i] == "file" && segments[i+1] == "d" && i+2 < len(segments):
			return &aiplatform.GoogleCloudAiplatformV1GoogleDriveSourceResourceId{
				ResourceId: segments[i+2], ResourceType: driveResourceFile,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not a drive file or folder link", ErrUnsupportedSource, raw)
}

func decodeImportResult(raw []byte) (*ImportResult, error) {
	// int64 counters are encoded as JSON strings.
	var resp struct {
		Imported json.Number `json:"importedRagFilesCount"`
		Failed   json.Number `json:"failedRagFilesCount"`
		Skipped  json.Number `json:"skippedRagFilesCount"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode import response: %w", err)
		}
	}
	count := func(n json.Number) int64 {
		v, _ := n.Int64()
		return v
	}
	return &ImportResult{Imported: count(resp.Imported), Failed: count(resp.Failed), Skipped: count(resp.Skipped)}, nil
}

func corpusFrom(rc *aiplatform.GoogleCloudAiplatformV1RagCorpus) Corpus {
	return Corpus{
		Name:        rc.Name,
		DisplayName: rc.DisplayName,
		Description: rc.Description,
		CreateTime:  rc.CreateTime,
	}
}

func fileFrom(rf *aiplatform.GoogleCloudAiplatformV1RagFile) File {
	f := File{Name: rf.Name, DisplayName: rf.DisplayName, CreateTime: rf.CreateTime}
	switch {
	case rf.GcsSource != nil && len(rf.GcsSource.Uris) > 0:
		f.Source = rf.GcsSource.Uris[0]
	case rf.GoogleDriveSource != nil && len(rf.GoogleDriveSource.ResourceIds) > 0:
		f.Source = "drive:" + rf.GoogleDriveSource.ResourceIds[0].ResourceId
	}
	return f
}
