package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/datafarmer/datafarmer/internal/fileio"
	"github.com/datafarmer/datafarmer/internal/frame"
	"github.com/datafarmer/datafarmer/internal/generation"
	"github.com/datafarmer/datafarmer/internal/parser"
	"github.com/spf13/cobra"
)

// optionsFile is the YAML layout accepted by --options.
type optionsFile struct {
	Temperature       *float32       `yaml:"temperature"`
	TopP              *float32       `yaml:"top_p"`
	MaxOutputTokens   int32          `yaml:"max_output_tokens"`
	ResponseMIMEType  string         `yaml:"response_mime_type"`
	ResponseSchema    map[string]any `yaml:"response_schema"`
	SystemInstruction string         `yaml:"system_instruction"`
	SafetySettings    []struct {
		Category  string `yaml:"category"`
		Threshold string `yaml:"threshold"`
	} `yaml:"safety_settings"`
	Retrieval *struct {
		Corpora                 []string `yaml:"corpora"`
		FileIDs                 []string `yaml:"file_ids"`
		TopK                    int32    `yaml:"top_k"`
		VectorDistanceThreshold *float64 `yaml:"vector_distance_threshold"`
	} `yaml:"retrieval"`
}

func (o optionsFile) toOptions() (generation.GenerationOptions, error) {
	opts := generation.GenerationOptions{
		Temperature:       o.Temperature,
		TopP:              o.TopP,
		MaxOutputTokens:   o.MaxOutputTokens,
		ResponseMIMEType:  o.ResponseMIMEType,
		SystemInstruction: o.SystemInstruction,
	}
	if len(o.ResponseSchema) > 0 {
		raw, err := json.Marshal(o.ResponseSchema)
		if err != nil {
			return opts, fmt.Errorf("invalid response schema: %w", err)
		}
		opts.ResponseSchema = raw
	}
	for _, s := range o.SafetySettings {
		opts.SafetySettings = append(opts.SafetySettings, generation.SafetySetting{
			Category:  s.Category,
			Threshold: s.Threshold,
		})
	}
	if r := o.Retrieval; r != nil {
		opts.Retrieval = &generation.Retrieval{
			Corpora:                 r.Corpora,
			FileIDs:                 r.FileIDs,
			TopK:                    r.TopK,
			VectorDistanceThreshold: r.VectorDistanceThreshold,
		}
	}
	return opts, nil
}

// genFlags are the generation flags shared by the gemini and generate commands.
type genFlags struct {
	batchSize   int
	optionsPath string
	schemaPath  string
	systemPath  string
	extractJSON bool
	ragCorpora  []string
	ragFileIDs  []string
}

func (g *genFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&g.batchSize, "batch-size", 0, "Requests per chunk (default from configuration)")
	cmd.Flags().StringVar(&g.optionsPath, "options", "", "YAML file with generation options")
	cmd.Flags().StringVar(&g.schemaPath, "schema", "", "JSON response schema file; implies application/json output")
	cmd.Flags().StringVar(&g.systemPath, "system", "", "Text file with the system instruction")
	cmd.Flags().BoolVar(&g.extractJSON, "extract-json", false, "Replace each result with the JSON object found in it")
	cmd.Flags().StringSliceVar(&g.ragCorpora, "rag-corpus", nil, "Ground generation on this RAG corpus resource name (repeatable)")
	cmd.Flags().StringSliceVar(&g.ragFileIDs, "rag-file-id", nil, "Restrict retrieval to these files of the single --rag-corpus")
}

// callOptions turns the flags into per-call options on top of base.
func (g *genFlags) callOptions(base generation.Config) ([]generation.CallOption, error) {
	var opts []generation.CallOption
	if g.batchSize > 0 {
		opts = append(opts, generation.WithBatchSize(g.batchSize))
	}

	genOpts := base.Options
	genOpts.SystemInstruction = base.SystemInstruction
	changed := false

	if g.optionsPath != "" {
		var file optionsFile
		if err := fileio.ReadYAMLInto(g.optionsPath, &file); err != nil {
			return nil, err
		}
		fromFile, err := file.toOptions()
		if err != nil {
			return nil, err
		}
		if fromFile.SystemInstruction == "" {
			fromFile.SystemInstruction = genOpts.SystemInstruction
		}
		if fromFile.Retrieval == nil {
			fromFile.Retrieval = genOpts.Retrieval
		}
		genOpts = fromFile
		changed = true
	}

	if g.systemPath != "" {
		text, err := fileio.ReadText(g.systemPath)
		if err != nil {
			return nil, err
		}
		genOpts.SystemInstruction = strings.TrimSpace(text)
		changed = true
	}

	if g.schemaPath != "" {
		text, err := fileio.ReadText(g.schemaPath)
		if err != nil {
			return nil, err
		}
		if !json.Valid([]byte(text)) {
			return nil, fmt.Errorf("%w: %s is not valid JSON", generation.ErrInvalidConfig, g.schemaPath)
		}
		genOpts.ResponseMIMEType = "application/json"
		genOpts.ResponseSchema = json.RawMessage(text)
		changed = true
	}

	if len(g.ragCorpora) > 0 || len(g.ragFileIDs) > 0 {
		retrieval := generation.Retrieval{Corpora: g.ragCorpora, FileIDs: g.ragFileIDs}
		if genOpts.Retrieval != nil {
			retrieval.TopK = genOpts.Retrieval.TopK
			retrieval.VectorDistanceThreshold = genOpts.Retrieval.VectorDistanceThreshold
			if len(retrieval.Corpora) == 0 {
				retrieval.Corpora = genOpts.Retrieval.Corpora
			}
		}
		genOpts.Retrieval = &retrieval
		changed = true
	}

	if changed {
		opts = append(opts, generation.WithGenerationOptions(genOpts))
	}
	return opts, nil
}

// extractJSON replaces each result cell with the compact JSON object parsed
// from it. Cells without parseable JSON are kept as they are and counted.
func extractJSON(f *frame.Frame) (*frame.Frame, int, error) {
	out, err := frame.New(f.Columns()...)
	if err != nil {
		return nil, 0, err
	}

	resultIdx := slices.Index(f.Columns(), generation.ColumnResult)
	if resultIdx < 0 {
		return nil, 0, fmt.Errorf("%w: %q", frame.ErrColumnNotFound, generation.ColumnResult)
	}

	failed := 0
	for i := 0; i < f.Len(); i++ {
		row := f.Row(i)
		obj, err := parser.ExtractJSONLenient(row[resultIdx])
		if err != nil {
			failed++
		} else {
			raw, err := json.Marshal(obj)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to encode row %d: %w", i, err)
			}
			row[resultIdx] = string(raw)
		}
		if err := out.Append(row...); err != nil {
			return nil, 0, err
		}
	}
	return out, failed, nil
}
