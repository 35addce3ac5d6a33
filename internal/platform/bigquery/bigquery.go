package bigquery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/datafarmer/datafarmer/internal/frame"
	"github.com/datafarmer/datafarmer/internal/platform/gcp"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Client wraps a BigQuery client billed to a single project.
type Client struct {
	bq        *bigquery.Client
	projectID string
	logger    *slog.Logger
}

// NewClient creates a Client for projectID. Without explicit options the
// Application Default Credentials must be available.
func NewClient(ctx context.Context, projectID string, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if projectID == "" {
		return nil, errors.New("project ID cannot be empty")
	}
	if len(opts) == 0 {
		if err := gcp.RequireCredentials(ctx); err != nil {
			return nil, err
		}
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}

	return &Client{
		bq:        client,
		projectID: projectID,
		logger:    logger.With("component", "bigquery", "project_id", projectID),
	}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.bq.Close()
}

// Read runs query and returns its result set as a frame.
func (c *Client) Read(ctx context.Context, query string) (*frame.Frame, error) {
	c.logger.InfoContext(ctx, "Running query")

	it, err := c.bq.Query(query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}

	var rows [][]string
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read query results: %w", err)
		}

		record := make([]string, len(row))
		for i, v := range row {
			record[i] = valueString(v)
		}
		rows = append(rows, record)
	}

	columns := make([]string, len(it.Schema))
	for i, field := range it.Schema {
		columns[i] = field.Name
	}

	f, err := frame.New(columns...)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := f.Append(row...); err != nil {
			return nil, err
		}
	}

	c.logger.InfoContext(ctx, "Query finished", "rows", f.Len(), "columns", len(columns))
	return f, nil
}

// Preview dry-runs query and returns the bytes it would process, formatted
// by FormatBytes.
func (c *Client) Preview(ctx context.Context, query string) (string, error) {
	q := c.bq.Query(query)
	q.DryRun = true
	q.DisableQueryCache = true

	job, err := q.Run(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to dry run query: %w", err)
	}

	status := job.LastStatus()
	if status == nil || status.Statistics == nil {
		return "", errors.New("dry run returned no statistics")
	}
	if err := status.Err(); err != nil {
		return "", fmt.Errorf("dry run failed: %w", err)
	}
	return FormatBytes(status.Statistics.TotalBytesProcessed), nil
}

// Write loads f into dataset.table. The dataset may be qualified with a
// project ("project.dataset"); it defaults to the client's project.
func (c *Client) Write(ctx context.Context, f *frame.Frame, dataset, table string, opts WriteOptions) error {
	disposition, err := opts.Mode.disposition()
	if err != nil {
		return err
	}

	project := c.projectID
	if p, d, ok := strings.Cut(dataset, "."); ok {
		project, dataset = p, d
	}

	var buf bytes.Buffer
	if err := f.WriteCSV(&buf); err != nil {
		return fmt.Errorf("failed to stage rows: %w", err)
	}

	source := bigquery.NewReaderSource(&buf)
	source.SourceFormat = bigquery.CSV
	source.SkipLeadingRows = 1
	source.AllowQuotedNewlines = true
	if len(opts.Schema) > 0 {
		schema, err := toSchema(opts.Schema)
		if err != nil {
			return err
		}
		source.Schema = schema
	} else {
		source.AutoDetect = true
	}

	loader := c.bq.DatasetInProject(project, dataset).Table(table).LoaderFrom(source)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = disposition
	if opts.PartitionField != "" {
		loader.TimePartitioning = &bigquery.TimePartitioning{Field: opts.PartitionField}
	}

	destination := fmt.Sprintf("%s.%s.%s", project, dataset, table)
	c.logger.InfoContext(ctx, "Loading rows", "table", destination, "rows", f.Len(), "mode", string(opts.Mode))

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to start load job for %s: %w", destination, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait for load job for %s: %w", destination, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load job for %s failed: %w", destination, err)
	}

	c.logger.InfoContext(ctx, "Rows loaded", "table", destination)
	return nil
}

// TableSchema is the schema of one table in a dataset.
type TableSchema struct {
	TableName string  `json:"table_name" yaml:"table_name"`
	Schema    []Field `json:"schema" yaml:"schema"`
}

// DatasetSchema returns the schema of every table in dataset.
func (c *Client) DatasetSchema(ctx context.Context, dataset string) ([]TableSchema, error) {
	var schemas []TableSchema

	it := c.bq.Dataset(dataset).Tables(ctx)
	for {
		table, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list tables in %s: %w", dataset, err)
		}

		md, err := table.Metadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get metadata of %s: %w", table.TableID, err)
		}
		schemas = append(schemas, TableSchema{
			TableName: fmt.Sprintf("%s.%s.%s", table.ProjectID, table.DatasetID, table.TableID),
			Schema:    fromSchema(md.Schema),
		})
	}
	return schemas, nil
}

// TableInfo is a summary of table metadata.
type TableInfo struct {
	ID             string    `json:"id" yaml:"id"`
	Description    string    `json:"description,omitempty" yaml:"description,omitempty"`
	NumRows        uint64    `json:"num_rows" yaml:"num_rows"`
	NumBytes       int64     `json:"num_bytes" yaml:"num_bytes"`
	Size           string    `json:"size" yaml:"size"`
	Created        time.Time `json:"created" yaml:"created"`
	Modified       time.Time `json:"modified" yaml:"modified"`
	PartitionField string    `json:"partition_field,omitempty" yaml:"partition_field,omitempty"`
	Schema         []Field   `json:"schema" yaml:"schema"`
}

// Info returns metadata for dataset.table.
func (c *Client) Info(ctx context.Context, dataset, table string) (*TableInfo, error) {
	md, err := c.bq.Dataset(dataset).Table(table).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata of %s.%s: %w", dataset, table, err)
	}

	info := &TableInfo{
		ID:          fmt.Sprintf("%s.%s.%s", c.projectID, dataset, table),
		Description: md.Description,
		NumRows:     md.NumRows,
		NumBytes:    md.NumBytes,
		Size:        FormatBytes(md.NumBytes),
		Created:     md.CreationTime,
		Modified:    md.LastModifiedTime,
		Schema:      fromSchema(md.Schema),
	}
	if md.TimePartitioning != nil {
		info.PartitionField = md.TimePartitioning.Field
	}
	return info, nil
}

// FormatBytes renders n as whole megabytes below one gigabyte and as
// gigabytes with one decimal otherwise (binary units).
func FormatBytes(n int64) string {
	const (
		mb = 1 << 20
		gb = 1 << 30
	)
	if n >= gb {
		return fmt.Sprintf("%.1f GB", float64(n)/gb)
	}
	return fmt.Sprintf("%.0f MB", float64(n)/mb)
}

func valueString(v bigquery.Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []bigquery.Value, map[string]bigquery.Value:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return fmt.Sprint(x)
	}
}
