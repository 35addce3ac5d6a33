package main

import (
	"errors"
	"fmt"

	"github.com/datafarmer/datafarmer/internal/platform/rag"
	"github.com/spf13/cobra"
)

func ragCmd(a *app) *cobra.Command {
	var project, location string

	client := func(cmd *cobra.Command) (*rag.Client, error) {
		project = firstNonEmpty(project, a.cfg.GCP.ProjectID)
		if project == "" {
			return nil, errors.New("project is required (--project or gcp.project_id)")
		}
		return rag.NewClient(cmd.Context(), project, firstNonEmpty(location, a.cfg.GCP.Location), a.logger)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the RAG corpora of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}
			corpora, err := c.Corpora(cmd.Context())
			if err != nil {
				return err
			}
			return printYAML(cmd, corpora)
		},
	}

	var embeddingModel string
	create := &cobra.Command{
		Use:     "create <display-name>",
		Short:   "Create a RAG corpus",
		Example: "datafarmer rag create handbook --embedding-model text-embedding-004",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}
			stop := startSpinner("Creating corpus...")
			corpus, err := c.CreateCorpus(cmd.Context(), args[0], firstNonEmpty(embeddingModel, a.cfg.RAG.EmbeddingModel))
			stop()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Created %s\n", a.ui.ok("[OK]"), corpus.Name)
			return nil
		},
	}
	create.Flags().StringVar(&embeddingModel, "embedding-model", "", "Publisher embedding model (default rag.embedding_model)")

	files := &cobra.Command{
		Use:   "files <corpus>",
		Short: "List the documents of a corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}
			docs, err := c.Files(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printYAML(cmd, docs)
		},
	}

	var importOpts rag.ImportOptions
	importFiles := &cobra.Command{
		Use:   "import <corpus> <path>...",
		Short: "Import Cloud Storage or Google Drive documents into a corpus",
		Long: "Paths are gs:// URIs or Drive links of the form https://drive.google.com/file/d/{id} " +
			"or https://drive.google.com/drive/folders/{id}. One import takes a single source kind.",
		Example: "datafarmer rag import 1234567890 gs://bucket/docs/policy.pdf",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}
			opts := importOpts
			if !cmd.Flags().Changed("chunk-size") {
				opts.ChunkSize = a.cfg.RAG.ChunkSize
			}
			if !cmd.Flags().Changed("chunk-overlap") {
				opts.ChunkOverlap = a.cfg.RAG.ChunkOverlap
			}
			if !cmd.Flags().Changed("max-embedding-rpm") {
				opts.MaxEmbeddingRequestsPerMin = a.cfg.RAG.MaxEmbeddingRequestsPerMin
			}

			stop := startSpinner("Importing files...")
			result, err := c.ImportFiles(cmd.Context(), args[0], args[1:], opts)
			stop()
			if err != nil {
				return err
			}
			tag := a.ui.ok("[OK]")
			if result.Failed > 0 {
				tag = a.ui.warn("[WARN]")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d imported, %d skipped, %d failed\n", tag, result.Imported, result.Skipped, result.Failed)
			return nil
		},
	}
	importFiles.Flags().Int64Var(&importOpts.ChunkSize, "chunk-size", 0, "Chunk size in tokens (default rag.chunk_size)")
	importFiles.Flags().Int64Var(&importOpts.ChunkOverlap, "chunk-overlap", 0, "Chunk overlap in tokens (default rag.chunk_overlap)")
	importFiles.Flags().Int64Var(&importOpts.MaxEmbeddingRequestsPerMin, "max-embedding-rpm", 0,
		"Embedding requests per minute (default rag.max_embedding_requests_per_min)")

	var query rag.Query
	queryCmd := &cobra.Command{
		Use:     "query <corpus> <text>",
		Short:   "Retrieve the chunks of a corpus closest to a query",
		Example: "datafarmer rag query 1234567890 'refund policy' --top-k 5",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd)
			if err != nil {
				return err
			}
			q := query
			q.Corpus, q.Text = args[0], args[1]
			if q.TopK == 0 {
				q.TopK = int64(a.cfg.RAG.TopK)
			}
			if q.VectorDistanceThreshold == 0 && a.cfg.RAG.DistanceThreshold != nil {
				q.VectorDistanceThreshold = *a.cfg.RAG.DistanceThreshold
			}
			chunks, err := c.Retrieve(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printYAML(cmd, chunks)
		},
	}
	queryCmd.Flags().Int64Var(&query.TopK, "top-k", 0, "Chunks to retrieve (default rag.top_k, then 10)")
	queryCmd.Flags().Float64Var(&query.VectorDistanceThreshold, "threshold", 0, "Maximum vector distance (default 0.5)")
	queryCmd.Flags().StringSliceVar(&query.FileIDs, "file-id", nil, "Restrict retrieval to these file ids")

	cmd := &cobra.Command{
		Use:   "rag",
		Short: "Vertex AI RAG Engine corpus management",
		Long: "Manage the corpora that ground generation. Pass a corpus to generate or gemini " +
			"with --rag-corpus, or set rag.corpora in the configuration.",
	}
	cmd.PersistentFlags().StringVar(&project, "project", "", "Google Cloud project (default gcp.project_id)")
	cmd.PersistentFlags().StringVar(&location, "location", "", "Vertex AI location (default gcp.location)")
	cmd.AddCommand(list, create, files, importFiles, queryCmd)
	return cmd
}
