// Package sheets reads Google Sheets worksheets into frames.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/datafarmer/datafarmer/internal/frame"
	"github.com/datafarmer/datafarmer/internal/platform/gcp"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Client reads spreadsheet values.
type Client struct {
	svc    *sheets.Service
	logger *slog.Logger
}

// NewClient creates a Sheets client. Without explicit options the Application
// Default Credentials are used with read-only spreadsheet and drive scopes.
func NewClient(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if len(opts) == 0 {
		var err error
		opts, err = gcp.ClientOptions(ctx, "", gcp.ScopeSheetsReadOnly, gcp.ScopeDriveReadOnly)
		if err != nil {
			return nil, err
		}
	}

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Client{svc: svc, logger: logger.With("component", "sheets")}, nil
}

// Read returns the worksheet sheetName of spreadsheet sheetID. The first row
// is the header; the remaining rows are records.
func (c *Client) Read(ctx context.Context, sheetID, sheetName string) (*frame.Frame, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(sheetID, sheetName).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
	}

	f, err := FromValues(resp.Values)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
	}

	c.logger.InfoContext(ctx, "Read sheet", "sheet", sheetName, "rows", f.Len())
	return f, nil
}

// FromValues converts a value range into a frame using the first row as the
// header. Rows shorter than the header are padded with empty cells and cells
// beyond the header are dropped.
func FromValues(values [][]any) (*frame.Frame, error) {
	if len(values) == 0 {
		return frame.New()
	}

	header := make([]string, len(values[0]))
	for i, v := range values[0] {
		header[i] = fmt.Sprint(v)
	}

	f, err := frame.New(header...)
	if err != nil {
		return nil, err
	}

	for _, row := range values[1:] {
		record := make([]string, len(header))
		for i := 0; i < len(header) && i < len(row); i++ {
			if row[i] != nil {
				record[i] = fmt.Sprint(row[i])
			}
		}
		if err := f.Append(record...); err != nil {
			return nil, err
		}
	}
	return f, nil
}
