package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/datafarmer/datafarmer/internal/frame"
)

// Column names of the input and output tables.
const (
	ColumnID     = "id"
	ColumnPrompt = "prompt"
	ColumnResult = "result"
	ColumnAudio  = "audio_file_path"
	ColumnImage  = "image_file_path"
)

// RequestsFromFrame converts a table into requests. The prompt column is
// required. A missing id column is replaced by the row position, with a
// warning. Non-empty audio_file_path and image_file_path cells become
// attachments.
func RequestsFromFrame(f *frame.Frame, logger *slog.Logger) ([]Request, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: input table is nil", ErrInvalidInput)
	}
	if !f.HasColumn(ColumnPrompt) {
		return nil, fmt.Errorf("%w: input table must have a %q column", ErrInvalidInput, ColumnPrompt)
	}

	hasID := f.HasColumn(ColumnID)
	if !hasID && logger != nil {
		logger.Warn("Input table has no id column, using row position as id")
	}

	requests := make([]Request, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		req := Request{ID: strconv.Itoa(i)}
		if hasID {
			req.ID, _ = f.Value(i, ColumnID)
		}
		req.Prompt, _ = f.Value(i, ColumnPrompt)

		if path, err := f.Value(i, ColumnAudio); err == nil && path != "" {
			req.Attachments = append(req.Attachments, Audio(path))
		}
		if path, err := f.Value(i, ColumnImage); err == nil && path != "" {
			req.Attachments = append(req.Attachments, Image(path))
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// GenerateFrame runs Generate over the rows of f and returns the (id, result)
// table of the successful rows alongside the full Result.
func (c *Client) GenerateFrame(
	ctx context.Context,
	f *frame.Frame,
	opts ...CallOption,
) (*frame.Frame, *Result, error) {
	requests, err := RequestsFromFrame(f, c.logger)
	if err != nil {
		return nil, nil, err
	}

	result, err := c.Generate(ctx, requests, opts...)
	if result == nil {
		return nil, nil, err
	}
	return result.Frame(), result, err
}
