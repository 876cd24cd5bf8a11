package migrate

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compozy/transcripts/cli/cmd"
	"github.com/compozy/transcripts/cli/helpers"
	"github.com/compozy/transcripts/engine/infra/postgres"
	"github.com/compozy/transcripts/engine/knowledge/vectordb"
	"github.com/compozy/transcripts/pkg/logger"
)

// NewMigrateCommand applies the embedded schema migrations.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, handleMigrate, args)
		},
	}
}

func handleMigrate(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	cfg := executor.Config()
	dsn := postgres.FromAppConfig(&cfg.Database).DSN()
	opts := postgres.MigrationOptions{Dimension: cfg.Knowledge.Dimension}
	if err := postgres.ApplyMigrationsWithLock(ctx, dsn, opts); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.FromContext(ctx).Info("Database migrations applied", "dimension", opts.Dimension)
	if executor.Format() == helpers.OutputFormatJSON {
		return helpers.WriteJSON(cobraCmd.OutOrStdout(), map[string]any{"applied": true, "dimension": opts.Dimension})
	}
	_, err := fmt.Fprintln(cobraCmd.OutOrStdout(), "Migrations applied")
	return err
}

// NewMigrateIDsCommand renames stored document ids to their normalized form.
func NewMigrateIDsCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "migrate-ids",
		Short: "Normalize legacy document ids in the vector store",
		Long: "Rename every stored document id to its normalized form in one transaction. " +
			"When the normalized id already exists the legacy passages are dropped.",
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cmd.ExecuteCommand(cobraCmd, handleMigrateIDs, args)
		},
	}
	c.Flags().Bool("dry-run", false, "Report the changes without applying them")
	return c
}

func handleMigrateIDs(ctx context.Context, cobraCmd *cobra.Command, executor *cmd.CommandExecutor, _ []string) error {
	dryRun, err := cobraCmd.Flags().GetBool("dry-run")
	if err != nil {
		return fmt.Errorf("failed to get dry-run flag: %w", err)
	}
	store, err := executor.Components().VectorStore(ctx)
	if err != nil {
		return err
	}
	report, err := store.MigrateLegacyIDs(ctx, dryRun)
	if err != nil {
		return fmt.Errorf("migrate document ids: %w", err)
	}
	logger.FromContext(ctx).Info("Document id migration finished",
		"dry_run", report.DryRun,
		"renamed", len(report.Renamed),
		"dropped", len(report.Dropped),
		"skipped", len(report.Skipped),
	)
	if executor.Format() == helpers.OutputFormatJSON {
		return helpers.WriteJSON(cobraCmd.OutOrStdout(), report)
	}
	return writeReport(cobraCmd, report)
}

func writeReport(cobraCmd *cobra.Command, report *vectordb.MigrationReport) error {
	out := cobraCmd.OutOrStdout()
	verb, summary := "Renamed", "Done"
	if report.DryRun {
		verb, summary = "Would rename", "Dry run"
	}
	for _, change := range report.Renamed {
		if _, err := fmt.Fprintf(out, "%s %q -> %q\n", verb, change.From, change.To); err != nil {
			return err
		}
	}
	for _, change := range report.Dropped {
		if _, err := fmt.Fprintf(out, "Dropped %q (superseded by %q)\n", change.From, change.To); err != nil {
			return err
		}
	}
	for _, id := range report.Skipped {
		if _, err := fmt.Fprintf(out, "Skipped %q: normalizes to an empty id\n", id); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(out, "%s: %d renamed, %d dropped, %d skipped\n", summary,
		len(report.Renamed), len(report.Dropped), len(report.Skipped))
	return err
}
