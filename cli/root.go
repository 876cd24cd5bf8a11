package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compozy/transcripts/cli/cmd/ingest"
	"github.com/compozy/transcripts/cli/cmd/migrate"
	"github.com/compozy/transcripts/cli/cmd/serve"
	"github.com/compozy/transcripts/cli/helpers"
	"github.com/compozy/transcripts/pkg/logger"
	"github.com/compozy/transcripts/pkg/version"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "transcripts",
		Short:         "Index transcripts and answer questions about them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
	}
	root.PersistentFlags().String("config", defaultConfigFile, "Path to the YAML configuration file")
	root.PersistentFlags().String("env-file", defaultEnvFile, "Path to the environment variables file")
	root.PersistentFlags().String("format", helpers.OutputFormatText, "Output format (text, json)")
	logger.AddFlags(root)

	root.AddCommand(
		serve.NewServeCommand(),
		ingest.NewIngestCommand(),
		migrate.NewMigrateCommand(),
		migrate.NewMigrateIDsCommand(),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			if helpers.OutputFormat(cmd) == helpers.OutputFormatJSON {
				return helpers.WriteJSON(cmd.OutOrStdout(), info)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "transcripts %s (commit %s, built %s)\n",
				info.Version, info.CommitHash, info.BuildDate)
			return err
		},
	}
}
