package gdrive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/datafarmer/datafarmer/internal/frame"
	"github.com/datafarmer/datafarmer/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeDrive serves the subset of the Drive v3 API used by Client.
type fakeDrive struct {
	mu       sync.Mutex
	folders  map[string]string
	queries  []string
	created  []string
	uploaded string
}

func (d *fakeDrive) snapshot() (queries, created []string, uploaded string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.queries...), append([]string(nil), d.created...), d.uploaded
}

func (d *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !strings.HasSuffix(r.URL.Path, "/files") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query().Get("q")
		d.queries = append(d.queries, q)
		files := []map[string]string{}
		for name, id := range d.folders {
			if strings.Contains(q, "name='"+name+"'") {
				files = append(files, map[string]string{"id": id, "name": name})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"files": files})

	case http.MethodPost:
		if r.URL.Query().Get("uploadType") != "" {
			body, _ := io.ReadAll(r.Body)
			d.uploaded = string(body)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"id":          "file-1",
				"name":        "out.csv",
				"webViewLink": "https://drive.example/file-1",
			})
			return
		}
		var meta map[string]any
		_ = json.NewDecoder(r.Body).Decode(&meta)
		name, _ := meta["name"].(string)
		d.created = append(d.created, name)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "folder-new"})

	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, fake *fakeDrive) *Client {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	log, _ := logger.GetTestLogger(t)
	c, err := NewClient(context.Background(), "", log,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c
}

func TestFolderID(t *testing.T) {
	t.Parallel()

	t.Run("existing folder", func(t *testing.T) {
		t.Parallel()

		fake := &fakeDrive{folders: map[string]string{"reports": "folder-1"}}
		c := newTestClient(t, fake)

		id, err := c.folderID(context.Background(), "reports")
		require.NoError(t, err)
		assert.Equal(t, "folder-1", id)
		queries, created, _ := fake.snapshot()
		assert.Empty(t, created)
		require.Len(t, queries, 1)
		assert.Contains(t, queries[0], "mimeType='application/vnd.google-apps.folder'")
		assert.Contains(t, queries[0], "trashed=false")
	})

	t.Run("missing folder is created", func(t *testing.T) {
		t.Parallel()

		fake := &fakeDrive{folders: map[string]string{}}
		c := newTestClient(t, fake)

		id, err := c.folderID(context.Background(), "new-folder")
		require.NoError(t, err)
		assert.Equal(t, "folder-new", id)
		_, created, _ := fake.snapshot()
		assert.Equal(t, []string{"new-folder"}, created)
	})
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	fake := &fakeDrive{folders: map[string]string{"exports": "folder-9"}}
	c := newTestClient(t, fake)

	f := frame.MustNew("id", "result")
	require.NoError(t, f.Append("1", "hello"))

	file, err := c.WriteFile(context.Background(), f, "out.csv", "exports")
	require.NoError(t, err)

	assert.Equal(t, &File{ID: "file-1", Name: "out.csv", WebViewLink: "https://drive.example/file-1"}, file)
	_, _, uploaded := fake.snapshot()
	assert.Contains(t, uploaded, "id,result\n1,hello\n")
	assert.Contains(t, uploaded, `"parents":["folder-9"]`)
}

func TestEscapeQuery(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `it\'s`, escapeQuery("it's"))
	assert.Equal(t, `a\\b`, escapeQuery(`a\b`))
}
