package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/datafarmer/datafarmer/internal/config"
	"github.com/datafarmer/datafarmer/internal/frame"
	"github.com/datafarmer/datafarmer/internal/generation"
	"github.com/datafarmer/datafarmer/internal/platform/gcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	mu      sync.Mutex
	reply   func(prompt string) (string, error)
	options []generation.GenerationOptions
}

func (m *fakeModel) Name() string { return "fake-model" }

func (m *fakeModel) Generate(
	_ context.Context,
	content generation.Content,
	opts generation.GenerationOptions,
) (string, error) {
	m.mu.Lock()
	m.options = append(m.options, opts)
	m.mu.Unlock()
	return m.reply(content.Prompt)
}

func (m *fakeModel) lastOptions() generation.GenerationOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.options[len(m.options)-1]
}

// isolateEnv clears configuration variables that would leak into a test run.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATAFARMER_GCP_PROJECT_ID",
		"DATAFARMER_GEMINI_BACKEND",
		"DATAFARMER_GEMINI_MODEL",
		"DATAFARMER_CACHE_REDIS_URL",
		"DATAFARMER_LOG_LEVEL",
		"DATAFARMER_RAG_CORPORA",
	} {
		t.Setenv(key, "")
	}
}

func run(t *testing.T, a *app, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(a)
	root.SetArgs(append(args, "--env-file", "", "--log-level", "error"))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func withModel(m *fakeModel) *app {
	a := newApp()
	a.newModel = func(context.Context, *config.Config, *slog.Logger) (generation.Model, error) {
		return m, nil
	}
	return a
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func readOutput(t *testing.T, path string) *frame.Frame {
	t.Helper()
	f, err := readCSVFile(path)
	require.NoError(t, err)
	return f
}

func TestTestCommand(t *testing.T) {
	isolateEnv(t)

	stdout, _, err := run(t, newApp(), "", "test")
	require.NoError(t, err)
	assert.Contains(t, stdout, "CLI is working")
	assert.Contains(t, stdout, "backend=vertex")
}

func TestTestCommand_ConfigFile(t *testing.T) {
	isolateEnv(t)
	path := writeFile(t, "config.yaml", "gemini:\n  model: gemini-test-model\n")

	stdout, _, err := run(t, newApp(), "", "test", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "model=gemini-test-model")
}

func TestGenerateCommand(t *testing.T) {
	isolateEnv(t)

	t.Run("writes successful rows", func(t *testing.T) {
		model := &fakeModel{reply: func(p string) (string, error) {
			if p == "blocked" {
				return "", generation.ErrContentBlocked
			}
			return "label:" + p, nil
		}}
		input := writeFile(t, "in.csv", "id,prompt\na,one\nb,blocked\nc,three\n")
		output := filepath.Join(t.TempDir(), "out.csv")

		stdout, _, err := run(t, withModel(model), "", "generate", "--input", input, "--output", output)
		require.NoError(t, err)
		assert.Contains(t, stdout, "2/3 rows succeeded (66.67%)")
		assert.Contains(t, stdout, "Output written to "+output)

		out := readOutput(t, output)
		assert.Equal(t, []string{generation.ColumnID, generation.ColumnResult}, out.Columns())
		require.NoError(t, out.SortBy(generation.ColumnID, strings.Compare))
		assert.Equal(t, [][]string{
			{"id", "result"},
			{"a", "label:one"},
			{"c", "label:three"},
		}, out.Records())
	})

	t.Run("default output path", func(t *testing.T) {
		model := &fakeModel{reply: func(p string) (string, error) { return p, nil }}
		input := writeFile(t, "rows.csv", "prompt\nhello\n")

		_, _, err := run(t, withModel(model), "", "generate", "-i", input)
		require.NoError(t, err)

		out := readOutput(t, strings.TrimSuffix(input, ".csv")+"_output.csv")
		assert.Equal(t, [][]string{{"id", "result"}, {"0", "hello"}}, out.Records())
	})

	t.Run("extract json", func(t *testing.T) {
		model := &fakeModel{reply: func(p string) (string, error) {
			if p == "bad" {
				return "no json here", nil
			}
			return "Sure:\n```json\n{\"label\": \"" + p + "\"}\n```", nil
		}}
		input := writeFile(t, "in.csv", "id,prompt\n1,pos\n2,bad\n")
		output := filepath.Join(t.TempDir(), "out.csv")

		_, _, err := run(t, withModel(model), "", "generate", "--input", input, "--output", output, "--extract-json")
		require.NoError(t, err)

		out := readOutput(t, output)
		require.NoError(t, out.SortBy(generation.ColumnID, strings.Compare))
		assert.Equal(t, [][]string{
			{"id", "result"},
			{"1", `{"label":"pos"}`},
			{"2", "no json here"},
		}, out.Records())
	})

	t.Run("generation options from files", func(t *testing.T) {
		model := &fakeModel{reply: func(p string) (string, error) { return "{}", nil }}
		input := writeFile(t, "in.csv", "prompt\nhello\n")
		options := writeFile(t, "options.yaml", "temperature: 0.2\nmax_output_tokens: 256\n")
		schema := writeFile(t, "schema.json", `{"type": "object"}`)
		system := writeFile(t, "system.txt", "You label reviews.\n")

		_, _, err := run(t, withModel(model), "", "generate",
			"--input", input,
			"--output", filepath.Join(t.TempDir(), "out.csv"),
			"--options", options,
			"--schema", schema,
			"--system", system,
		)
		require.NoError(t, err)

		got := model.lastOptions()
		require.NotNil(t, got.Temperature)
		assert.InDelta(t, 0.2, *got.Temperature, 1e-6)
		assert.Equal(t, int32(256), got.MaxOutputTokens)
		assert.Equal(t, "application/json", got.ResponseMIMEType)
		assert.JSONEq(t, `{"type": "object"}`, string(got.ResponseSchema))
		assert.Equal(t, "You label reviews.", got.SystemInstruction)
	})

	t.Run("rag corpus flags", func(t *testing.T) {
		model := &fakeModel{reply: func(p string) (string, error) { return "grounded", nil }}
		input := writeFile(t, "in.csv", "prompt\nwhat is the refund policy\n")
		options := writeFile(t, "options.yaml", "retrieval:\n  corpora: [ignored]\n  top_k: 4\n  vector_distance_threshold: 0.5\n")
		corpus := "projects/p/locations/us-central1/ragCorpora/7"

		_, _, err := run(t, withModel(model), "", "generate",
			"--input", input,
			"--output", filepath.Join(t.TempDir(), "out.csv"),
			"--options", options,
			"--rag-corpus", corpus,
			"--rag-file-id", "f1",
		)
		require.NoError(t, err)

		got := model.lastOptions().Retrieval
		require.NotNil(t, got)
		assert.Equal(t, []string{corpus}, got.Corpora, "flags override the corpora of the options file")
		assert.Equal(t, []string{"f1"}, got.FileIDs)
		assert.Equal(t, int32(4), got.TopK)
		require.NotNil(t, got.VectorDistanceThreshold)
		assert.InDelta(t, 0.5, *got.VectorDistanceThreshold, 1e-9)
	})

	t.Run("rag corpora from configuration", func(t *testing.T) {
		t.Setenv("DATAFARMER_RAG_CORPORA", "projects/p/locations/us-central1/ragCorpora/9")
		model := &fakeModel{reply: func(p string) (string, error) { return "ok", nil }}
		input := writeFile(t, "in.csv", "prompt\nhello\n")

		_, _, err := run(t, withModel(model), "", "generate", "--input", input, "--output", filepath.Join(t.TempDir(), "out.csv"))
		require.NoError(t, err)

		got := model.lastOptions().Retrieval
		require.NotNil(t, got)
		assert.Equal(t, []string{"projects/p/locations/us-central1/ragCorpora/9"}, got.Corpora)
	})

	t.Run("file ids across several corpora", func(t *testing.T) {
		input := writeFile(t, "in.csv", "prompt\nhello\n")
		_, _, err := run(t, withModel(&fakeModel{}), "", "generate", "--input", input,
			"--rag-corpus", "c1", "--rag-corpus", "c2", "--rag-file-id", "f1")
		require.Error(t, err)
		assert.ErrorIs(t, err, generation.ErrInvalidConfig)
	})

	t.Run("byte order mark in header", func(t *testing.T) {
		model := &fakeModel{reply: func(p string) (string, error) { return "ok:" + p, nil }}
		input := writeFile(t, "excel.csv", "\ufeffprompt,id\nhello,r1\n")
		output := filepath.Join(t.TempDir(), "out.csv")

		_, _, err := run(t, withModel(model), "", "generate", "--input", input, "--output", output)
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"id", "result"}, {"r1", "ok:hello"}}, readOutput(t, output).Records())
	})

	t.Run("missing input", func(t *testing.T) {
		_, _, err := run(t, withModel(&fakeModel{}), "", "generate")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--input is required")
	})

	t.Run("missing prompt column", func(t *testing.T) {
		input := writeFile(t, "in.csv", "id,text\n1,hello\n")
		_, _, err := run(t, withModel(&fakeModel{}), "", "generate", "--input", input)
		require.Error(t, err)
		assert.ErrorIs(t, err, generation.ErrInvalidInput)
	})

	t.Run("invalid schema file", func(t *testing.T) {
		input := writeFile(t, "in.csv", "prompt\nhello\n")
		schema := writeFile(t, "schema.json", "{not json")
		_, _, err := run(t, withModel(&fakeModel{}), "", "generate", "--input", input, "--schema", schema)
		require.Error(t, err)
		assert.ErrorIs(t, err, generation.ErrInvalidConfig)
	})
}

func TestGeminiCommand_Validation(t *testing.T) {
	isolateEnv(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing project",
			args:    []string{"gemini", "--table", "reviews.raw"},
			wantErr: "project is required",
		},
		{
			name:    "missing table",
			args:    []string{"gemini", "--project", "p"},
			wantErr: "--table is required",
		},
		{
			name:    "invalid mode",
			args:    []string{"gemini", "--project", "p", "--table", "reviews.raw", "--mode", "replace"},
			wantErr: "unsupported write mode",
		},
		{
			name:    "invalid table reference",
			args:    []string{"gemini", "--project", "p", "--table", "raw"},
			wantErr: "invalid table reference",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := run(t, withModel(&fakeModel{}), "", tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestGeminiCommand_ModelUsesResolvedProject(t *testing.T) {
	isolateEnv(t)
	// No credentials, so the BigQuery client is never created.
	t.Setenv(gcp.CredentialsEnv, filepath.Join(t.TempDir(), "missing.json"))

	spy := func(projects *[]string, err error) *app {
		a := newApp()
		a.newModel = func(_ context.Context, cfg *config.Config, _ *slog.Logger) (generation.Model, error) {
			*projects = append(*projects, cfg.GCP.ProjectID)
			if err != nil {
				return nil, err
			}
			return &fakeModel{}, nil
		}
		return a
	}

	t.Run("flag project reaches the model", func(t *testing.T) {
		var projects []string
		_, _, err := run(t, spy(&projects, nil), "", "gemini", "--project", "flag-project", "--table", "reviews.raw")
		require.Error(t, err)
		assert.ErrorIs(t, err, gcp.ErrCredentialsNotSet)
		assert.Equal(t, []string{"flag-project"}, projects)
	})

	t.Run("flag project overrides configuration", func(t *testing.T) {
		var projects []string
		t.Setenv("DATAFARMER_GCP_PROJECT_ID", "configured-project")
		_, _, err := run(t, spy(&projects, nil), "", "gemini", "--project", "other-project", "--table", "d.t")
		require.Error(t, err)
		assert.Equal(t, []string{"other-project"}, projects, "explicit project wins over configuration")
	})

	t.Run("model errors surface before bigquery is read", func(t *testing.T) {
		var projects []string
		modelErr := errors.New("vertex backend needs a project")
		_, _, err := run(t, spy(&projects, modelErr), "", "gemini", "--project", "p", "--table", "reviews.raw")
		require.Error(t, err)
		assert.ErrorIs(t, err, modelErr)
		assert.NotErrorIs(t, err, gcp.ErrCredentialsNotSet)
		assert.Len(t, projects, 1)
	})
}

func TestRAGCommand_Validation(t *testing.T) {
	isolateEnv(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "list without project", args: []string{"rag", "list"}, wantErr: "project is required"},
		{name: "import without paths", args: []string{"rag", "import", "--project", "p", "123"}, wantErr: "requires at least 2 arg(s)"},
		{name: "query without text", args: []string{"rag", "query", "--project", "p", "123"}, wantErr: "accepts 2 arg(s)"},
		{name: "create without name", args: []string{"rag", "create", "--project", "p"}, wantErr: "accepts 1 arg(s)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := run(t, newApp(), "", tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestProfileCommand(t *testing.T) {
	isolateEnv(t)
	input := writeFile(t, "in.csv", "age,name\n1,ann\n2,\n")

	t.Run("features", func(t *testing.T) {
		stdout, _, err := run(t, newApp(), "", "profile", input)
		require.NoError(t, err)

		f, err := frame.ReadCSV(strings.NewReader(stdout))
		require.NoError(t, err)
		assert.Equal(t, []string{"Feature", "Dtypes", "Unique Values", "Values"}, f.Columns())
		assert.Equal(t, []string{"age", "int64", "2", `["1","2"]`}, f.Row(0))
	})

	t.Run("nulls", func(t *testing.T) {
		stdout, _, err := run(t, newApp(), "", "profile", "--nulls", input)
		require.NoError(t, err)

		f, err := frame.ReadCSV(strings.NewReader(stdout))
		require.NoError(t, err)
		assert.Equal(t, [][]string{
			{"Feature", "Null Samples", "Null Proportion"},
			{"name", "1", "0.5"},
		}, f.Records())
	})
}

func TestPrompter(t *testing.T) {
	t.Run("non-interactive uses current or default", func(t *testing.T) {
		var out bytes.Buffer
		p := newPrompter(strings.NewReader("ignored\n"), &out)
		assert.False(t, p.interactive)
		assert.Equal(t, "flag", p.ask("Project", "flag", "default"))
		assert.Equal(t, "default", p.ask("Project", "", "default"))
		assert.Empty(t, out.String())
	})

	t.Run("interactive reads answer", func(t *testing.T) {
		var out bytes.Buffer
		p := &prompter{in: bufio.NewReader(strings.NewReader("answer\n\n")), out: &out, interactive: true}
		assert.Equal(t, "answer", p.ask("Project", "", "default"))
		assert.Equal(t, "default", p.ask("Table", "", "default"))
		assert.Equal(t, "Project [default]: Table [default]: ", out.String())
	})
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "reviews.raw_output", destinationTable("reviews.raw", ""))
	assert.Equal(t, "reviews.labels", destinationTable("reviews.raw", "reviews.labels"))
	assert.Equal(t, "data/in_output.csv", defaultOutputPath("data/in.csv"))
	assert.Equal(t, "in.txt_output.csv", defaultOutputPath("in.txt"))
	assert.Equal(t, "SELECT * FROM `p.d.t`", sourceQuery("p", "d", "t"))
	assert.Equal(t, "b", firstNonEmpty("", "  ", "b", "c"))
}

func TestExtractJSON(t *testing.T) {
	f := frame.MustNew(generation.ColumnID, generation.ColumnResult)
	require.NoError(t, f.Append("1", "```json\n{\"a\": 1}\n```"))
	require.NoError(t, f.Append("2", "{'a': 2,}"))
	require.NoError(t, f.Append("3", "plain"))

	out, failed, err := extractJSON(f)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	results, err := out.Column(generation.ColumnResult)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`, "plain"}, results)

	_, _, err = extractJSON(frame.MustNew("id"))
	assert.ErrorIs(t, err, frame.ErrColumnNotFound)
}

func TestPrintSummary(t *testing.T) {
	isolateEnv(t)
	model := &fakeModel{reply: func(p string) (string, error) { return "", generation.ErrContentBlocked }}
	var prompts []string
	for i := 0; i < maxListedFailures+2; i++ {
		prompts = append(prompts, "p")
	}
	input := writeFile(t, "in.csv", "prompt\n"+strings.Join(prompts, "\n")+"\n")

	stdout, _, err := run(t, withModel(model), "", "generate", "--input", input,
		"--output", filepath.Join(t.TempDir(), "out.csv"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "0/7 rows succeeded (0.00%)")
	assert.Contains(t, stdout, "... and 2 more")
	assert.Equal(t, maxListedFailures, strings.Count(stdout, "Error: "))
}
