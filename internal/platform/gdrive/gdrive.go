// Package gdrive uploads frames as CSV files into Google Drive folders.
package gdrive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datafarmer/datafarmer/internal/frame"
	"github.com/datafarmer/datafarmer/internal/platform/gcp"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	folderMIMEType = "application/vnd.google-apps.folder"
	csvMIMEType    = "text/csv"
)

// File is the metadata of an uploaded file.
type File struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WebViewLink string `json:"webViewLink"`
}

// Client uploads files to Drive.
type Client struct {
	svc    *drive.Service
	logger *slog.Logger
}

// NewClient creates a Drive client. Without explicit options the Application
// Default Credentials are used with the drive.file scope, billed to projectID.
func NewClient(ctx context.Context, projectID string, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if len(opts) == 0 {
		var err error
		opts, err = gcp.ClientOptions(ctx, projectID, gcp.ScopeDriveFile)
		if err != nil {
			return nil, err
		}
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &Client{svc: svc, logger: logger.With("component", "gdrive")}, nil
}

// WriteFile uploads f as a CSV named fileName into the folder named
// folderName, creating the folder when no folder with that name exists.
func (c *Client) WriteFile(ctx context.Context, f *frame.Frame, fileName, folderName string) (*File, error) {
	folderID, err := c.folderID(ctx, folderName)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.WriteCSV(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode csv: %w", err)
	}

	meta := &drive.File{Name: fileName, MimeType: csvMIMEType, Parents: []string{folderID}}
	created, err := c.svc.Files.Create(meta).
		Media(&buf, googleapi.ContentType(csvMIMEType)).
		Fields("id, name, webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", fileName, err)
	}

	c.logger.InfoContext(ctx, "Uploaded file to drive",
		"file_id", created.Id,
		"name", created.Name,
		"folder_id", folderID)

	return &File{ID: created.Id, Name: created.Name, WebViewLink: created.WebViewLink}, nil
}

// folderID returns the id of the first non-trashed folder named name,
// creating the folder when none exists.
func (c *Client) folderID(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeQuery(name), folderMIMEType)

	list, err := c.svc.Files.List().Q(query).Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to search folder %s: %w", name, err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	folder, err := c.svc.Files.Create(&drive.File{Name: name, MimeType: folderMIMEType}).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", name, err)
	}

	c.logger.InfoContext(ctx, "Created drive folder", "folder_id", folder.Id, "name", name)
	return folder.Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
