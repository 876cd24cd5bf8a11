package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/compozy/transcripts/cli/cmd"
	"github.com/compozy/transcripts/cli/helpers"
	kingest "github.com/compozy/transcripts/engine/knowledge/ingest"
	"github.com/compozy/transcripts/pkg/logger"
)

// NewIngestCommand indexes a transcript file from disk.
func NewIngestCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Index a transcript file",
		Long: "Read a text transcript from disk, chunk and embed it, and replace any " +
			"passages previously stored under the same document id.",
		Args: cobra.ExactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, handleIngest, args)
		},
	}
	c.Flags().String("id", "", "Document id (defaults to the file name)")
	c.Flags().String("title", "", "Document title (defaults to the header title or file name)")
	return c
}

func handleIngest(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, args []string) error {
	doc, err := kingest.LoadFile(args[0])
	if err != nil {
		return helpers.NewCliError("INVALID_INPUT", "Cannot read transcript", err.Error())
	}
	if id, _ := cobraCmd.Flags().GetString("id"); strings.TrimSpace(id) != "" {
		doc.ID = id
	}
	if title, _ := cobraCmd.Flags().GetString("title"); strings.TrimSpace(title) != "" {
		doc.Title = title
	}
	pipeline, err := executor.Components().Pipeline(ctx)
	if err != nil {
		return err
	}
	result, err := pipeline.Ingest(ctx, doc)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", args[0], err)
	}
	logger.FromContext(ctx).Info("Transcript processed",
		"document_id", result.DocumentID,
		"valid", result.Valid,
		"chunks", result.ChunksCreated,
		"partial", result.Partial,
	)
	if executor.Format() == helpers.OutputFormatJSON {
		return helpers.WriteJSON(cobraCmd.OutOrStdout(), result)
	}
	return writeSummary(cobraCmd, result)
}

func writeSummary(cobraCmd *cobra.Command, result *kingest.Result) error {
	out := cobraCmd.OutOrStdout()
	if !result.Valid {
		_, err := fmt.Fprintf(out, "Skipped %s: %s (%d characters)\n",
			result.DocumentID, result.Reason, result.ContentLength)
		return err
	}
	if _, err := fmt.Fprintf(out, "Indexed %s: %d chunks\n", result.DocumentID, result.ChunksCreated); err != nil {
		return err
	}
	for _, task := range result.Tasks {
		status := "ok"
		if !task.OK {
			status = "failed: " + task.Error
		}
		if _, err := fmt.Fprintf(out, "  %s: %s\n", task.Name, status); err != nil {
			return err
		}
	}
	return nil
}
