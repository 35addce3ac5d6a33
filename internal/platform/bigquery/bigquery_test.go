package bigquery

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/datafarmer/datafarmer/internal/platform/gcp"
	"github.com/datafarmer/datafarmer/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 MB"},
		{12 << 20, "12 MB"},
		{1023 << 20, "1023 MB"},
		{1 << 30, "1.0 GB"},
		{3 << 29, "1.5 GB"},
		{250 << 30, "250.0 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.bytes), "bytes=%d", tt.bytes)
	}
}

func TestParseWriteMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    WriteMode
		wantErr bool
	}{
		{"", WriteTruncate, false},
		{"truncate", WriteTruncate, false},
		{"WRITE_APPEND", WriteAppend, false},
		{" empty ", WriteEmpty, false},
		{"overwrite", "", true},
	}

	for _, tt := range tests {
		got, err := ParseWriteMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	d, err := WriteMode("").disposition()
	require.NoError(t, err)
	assert.Equal(t, bigquery.WriteTruncate, d)
}

func TestSchemaConversion(t *testing.T) {
	t.Parallel()

	fields := []Field{
		{Name: "id", Type: "string", Mode: "required"},
		{Name: "result", Type: "STRING"},
		{Name: "tags", Type: "string", Mode: "REPEATED", Description: "labels"},
		{Name: "created_at", Type: "timestamp", Mode: "NULLABLE"},
	}

	schema, err := toSchema(fields)
	require.NoError(t, err)
	require.Len(t, schema, 4)

	assert.Equal(t, bigquery.StringFieldType, schema[0].Type)
	assert.True(t, schema[0].Required)
	assert.False(t, schema[1].Required)
	assert.True(t, schema[2].Repeated)
	assert.Equal(t, "labels", schema[2].Description)
	assert.Equal(t, bigquery.TimestampFieldType, schema[3].Type)

	assert.Equal(t, []Field{
		{Name: "id", Type: "STRING", Mode: "REQUIRED"},
		{Name: "result", Type: "STRING", Mode: "NULLABLE"},
		{Name: "tags", Type: "STRING", Mode: "REPEATED", Description: "labels"},
		{Name: "created_at", Type: "TIMESTAMP", Mode: "NULLABLE"},
	}, fromSchema(schema))

	_, err = toSchema([]Field{{Type: "STRING"}})
	assert.Error(t, err)
	_, err = toSchema([]Field{{Name: "x"}})
	assert.Error(t, err)
	_, err = toSchema([]Field{{Name: "x", Type: "STRING", Mode: "OPTIONAL"}})
	assert.Error(t, err)
}

func TestParseTableRef(t *testing.T) {
	t.Parallel()

	p, d, tb, err := ParseTableRef("analytics.reviews", "my-project")
	require.NoError(t, err)
	assert.Equal(t, []string{"my-project", "analytics", "reviews"}, []string{p, d, tb})

	p, d, tb, err = ParseTableRef("other.analytics.reviews", "my-project")
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "analytics", "reviews"}, []string{p, d, tb})

	for _, bad := range []string{"reviews", "a..b", "a.b.c.d", ""} {
		_, _, _, err := ParseTableRef(bad, "my-project")
		assert.Error(t, err, bad)
	}
}

func TestValueString(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	assert.Equal(t, "", valueString(nil))
	assert.Equal(t, "text", valueString("text"))
	assert.Equal(t, "42", valueString(int64(42)))
	assert.Equal(t, "1.5", valueString(1.5))
	assert.Equal(t, "true", valueString(true))
	assert.Equal(t, "aGk=", valueString([]byte("hi")))
	assert.Equal(t, "2024-05-01T10:30:00Z", valueString(ts))
	assert.Equal(t, `["a","b"]`, valueString([]bigquery.Value{"a", "b"}))
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Setenv(gcp.CredentialsEnv, filepath.Join(t.TempDir(), "missing.json"))
	log, _ := logger.GetTestLogger(t)

	_, err := NewClient(context.Background(), "my-project", log)
	assert.ErrorIs(t, err, gcp.ErrCredentialsNotSet)

	_, err = NewClient(context.Background(), "", log)
	assert.Error(t, err)
}
