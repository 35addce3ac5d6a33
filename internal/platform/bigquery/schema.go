package bigquery

import (
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
)

// WriteMode is the write disposition of a load job.
type WriteMode string

const (
	WriteTruncate WriteMode = "WRITE_TRUNCATE"
	WriteAppend   WriteMode = "WRITE_APPEND"
	WriteEmpty    WriteMode = "WRITE_EMPTY"
)

// ParseWriteMode accepts the disposition names case-insensitively, with or
// without the WRITE_ prefix. An empty string selects WriteTruncate.
func ParseWriteMode(s string) (WriteMode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return WriteTruncate, nil
	}
	if !strings.HasPrefix(s, "WRITE_") {
		s = "WRITE_" + s
	}
	mode := WriteMode(s)
	if _, err := mode.disposition(); err != nil {
		return "", err
	}
	return mode, nil
}

func (m WriteMode) disposition() (bigquery.TableWriteDisposition, error) {
	switch m {
	case WriteTruncate, "":
		return bigquery.WriteTruncate, nil
	case WriteAppend:
		return bigquery.WriteAppend, nil
	case WriteEmpty:
		return bigquery.WriteEmpty, nil
	default:
		return "", fmt.Errorf("unsupported write mode %q", string(m))
	}
}

// WriteOptions control a load job.
type WriteOptions struct {
	// Mode defaults to WriteTruncate.
	Mode WriteMode

	// Schema is detected from the data when empty.
	Schema []Field

	// PartitionField enables daily time partitioning on a DATE or TIMESTAMP column.
	PartitionField string
}

// Field is a flat column definition as found in BigQuery's JSON schema files.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Mode        string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func toSchema(fields []Field) (bigquery.Schema, error) {
	schema := make(bigquery.Schema, 0, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema field %d has no name", i)
		}
		if f.Type == "" {
			return nil, fmt.Errorf("schema field %q has no type", f.Name)
		}

		fs := &bigquery.FieldSchema{
			Name:        f.Name,
			Type:        bigquery.FieldType(strings.ToUpper(f.Type)),
			Description: f.Description,
		}
		switch strings.ToUpper(f.Mode) {
		case "", "NULLABLE":
		case "REQUIRED":
			fs.Required = true
		case "REPEATED":
			fs.Repeated = true
		default:
			return nil, fmt.Errorf("schema field %q has unknown mode %q", f.Name, f.Mode)
		}
		schema = append(schema, fs)
	}
	return schema, nil
}

func fromSchema(schema bigquery.Schema) []Field {
	fields := make([]Field, 0, len(schema))
	for _, fs := range schema {
		mode := "NULLABLE"
		switch {
		case fs.Required:
			mode = "REQUIRED"
		case fs.Repeated:
			mode = "REPEATED"
		}
		fields = append(fields, Field{
			Name:        fs.Name,
			Type:        string(fs.Type),
			Mode:        mode,
			Description: fs.Description,
		})
	}
	return fields
}

// ParseTableRef splits "project.dataset.table" or "dataset.table",
// using defaultProject for the latter.
func ParseTableRef(ref, defaultProject string) (project, dataset, table string, err error) {
	parts := strings.Split(strings.TrimSpace(ref), ".")
	switch {
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return defaultProject, parts[0], parts[1], nil
	case len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] != "":
		return parts[0], parts[1], parts[2], nil
	default:
		return "", "", "", fmt.Errorf("invalid table reference %q: want dataset.table or project.dataset.table", ref)
	}
}
