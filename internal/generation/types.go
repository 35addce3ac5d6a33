package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Backend selects the transport used to reach the remote generation service.
// It affects only transport; the request/response contract is the same.
type Backend string

const (
	// BackendVertex is the managed enterprise endpoint (Vertex AI, project credentials).
	BackendVertex Backend = "vertex"

	// BackendGeminiAPI is the direct API endpoint (API key).
	BackendGeminiAPI Backend = "genai"
)

// ParseBackend validates a backend selector.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendVertex, BackendGeminiAPI:
		return b, nil
	default:
		return "", fmt.Errorf("%w: backend should be either %q or %q, got %q",
			ErrInvalidConfig, BackendVertex, BackendGeminiAPI, s)
	}
}

// AttachmentKind tags the binary payload carried by an Attachment.
type AttachmentKind int

const (
	// AttachmentAudio is an audio file (declared as audio/mp3).
	AttachmentAudio AttachmentKind = iota + 1

	// AttachmentImage is an image file (declared as image/jpeg).
	AttachmentImage
)

func (k AttachmentKind) String() string {
	switch k {
	case AttachmentAudio:
		return "audio"
	case AttachmentImage:
		return "image"
	default:
		return fmt.Sprintf("AttachmentKind(%d)", int(k))
	}
}

// DefaultMIMEType returns the MIME type declared for the kind when sniffing
// the payload does not yield a more specific type of the same family.
func (k AttachmentKind) DefaultMIMEType() string {
	switch k {
	case AttachmentAudio:
		return "audio/mp3"
	case AttachmentImage:
		return "image/jpeg"
	default:
		return ""
	}
}

func (k AttachmentKind) valid() bool {
	return k == AttachmentAudio || k == AttachmentImage
}

// Attachment references a binary file sent alongside a prompt.
type Attachment struct {
	Kind AttachmentKind
	Path string
}

// Audio returns an audio attachment for the file at path.
func Audio(path string) Attachment {
	return Attachment{Kind: AttachmentAudio, Path: path}
}

// Image returns an image attachment for the file at path.
func Image(path string) Attachment {
	return Attachment{Kind: AttachmentImage, Path: path}
}

// Request is one row of a batch.
type Request struct {
	// ID identifies the row in the result. Uniqueness within a batch is the
	// caller's responsibility.
	ID string

	// Prompt is the text sent to the model. It must not be empty.
	Prompt string

	// Attachments are optional binary payloads sent after the prompt.
	Attachments []Attachment
}

// Blob is a resolved attachment: its bytes and the MIME type they are sent with.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Content is what a Model receives for a single request.
type Content struct {
	Prompt string
	Blobs  []Blob
}

// SafetySetting maps a harm category to a blocking threshold, using the
// Gemini enum names (e.g. HARM_CATEGORY_HATE_SPEECH, BLOCK_ONLY_HIGH).
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// Retrieval grounds generation on Vertex RAG corpora. It is only honoured
// by the managed backend.
type Retrieval struct {
	// Corpora are full resource names:
	// projects/{project}/locations/{location}/ragCorpora/{corpus}.
	Corpora []string `json:"corpora"`

	// FileIDs restricts retrieval to these files. It requires exactly one corpus.
	FileIDs []string `json:"file_ids,omitempty"`

	// TopK is the number of chunks retrieved; zero uses the service default.
	TopK int32 `json:"top_k,omitempty"`

	// VectorDistanceThreshold drops chunks farther than this distance.
	VectorDistanceThreshold *float64 `json:"vector_distance_threshold,omitempty"`
}

func (r *Retrieval) validate() error {
	if len(r.Corpora) == 0 {
		return fmt.Errorf("%w: retrieval needs at least one corpus", ErrInvalidConfig)
	}
	for i, c := range r.Corpora {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: retrieval corpus %d is empty", ErrInvalidConfig, i)
		}
	}
	if len(r.FileIDs) > 0 && len(r.Corpora) != 1 {
		return fmt.Errorf("%w: retrieval file ids require exactly one corpus, got %d", ErrInvalidConfig, len(r.Corpora))
	}
	if r.TopK < 0 {
		return fmt.Errorf("%w: retrieval top_k cannot be negative", ErrInvalidConfig)
	}
	if r.VectorDistanceThreshold != nil && *r.VectorDistanceThreshold < 0 {
		return fmt.Errorf("%w: retrieval distance threshold cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// GenerationOptions are the sampling and output settings of a remote call.
type GenerationOptions struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"top_p,omitempty"`
	MaxOutputTokens int32    `json:"max_output_tokens,omitempty"`

	// ResponseMIMEType is e.g. "application/json" for structured output.
	ResponseMIMEType string `json:"response_mime_type,omitempty"`

	// ResponseSchema is an OpenAPI-style schema document constraining
	// structured output. It requires ResponseMIMEType "application/json".
	ResponseSchema json.RawMessage `json:"response_schema,omitempty"`

	SafetySettings []SafetySetting `json:"safety_settings,omitempty"`

	// Retrieval attaches a RAG retrieval tool to the call.
	Retrieval *Retrieval `json:"retrieval,omitempty"`

	// SystemInstruction is filled from Config by the client.
	SystemInstruction string `json:"system_instruction,omitempty"`
}

func (o GenerationOptions) validate() error {
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be within [0, 2], got %v", ErrInvalidConfig, *o.Temperature)
	}
	if o.TopP != nil && (*o.TopP < 0 || *o.TopP > 1) {
		return fmt.Errorf("%w: top_p must be within [0, 1], got %v", ErrInvalidConfig, *o.TopP)
	}
	if o.MaxOutputTokens < 0 {
		return fmt.Errorf("%w: max output tokens cannot be negative", ErrInvalidConfig)
	}
	if len(o.ResponseSchema) > 0 {
		if !json.Valid(o.ResponseSchema) {
			return fmt.Errorf("%w: response schema is not valid JSON", ErrInvalidConfig)
		}
		if o.ResponseMIMEType != "application/json" {
			return fmt.Errorf("%w: response schema requires response mime type application/json, got %q",
				ErrInvalidConfig, o.ResponseMIMEType)
		}
	}
	for i, s := range o.SafetySettings {
		if s.Category == "" || s.Threshold == "" {
			return fmt.Errorf("%w: safety setting %d needs both category and threshold", ErrInvalidConfig, i)
		}
	}
	if o.Retrieval != nil {
		return o.Retrieval.validate()
	}
	return nil
}
