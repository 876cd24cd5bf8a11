package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/compozy/transcripts/pkg/config"
	"github.com/compozy/transcripts/pkg/logger"
)

const (
	defaultConfigFile = "transcripts.yaml"
	defaultEnvFile    = ".env"
)

// flagPaths maps CLI flags onto configuration paths. Only flags the user set
// explicitly are applied, so unset flags never mask YAML or env values.
var flagPaths = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"vector-store": "knowledge.vector_store",
	"log-level":    "runtime.log_level",
	"log-json":     "runtime.log_json",
}

// SetupGlobalConfig loads .env, the YAML file and flag overrides, then
// attaches the config and a configured logger to the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.NewService().Load(ctx,
		config.NewYAMLProvider(configFile),
		config.NewCLIProvider(extractCLIFlags(cmd)),
	)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	_, _, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return err
	}
	logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, logSource)
	ctx = logger.ContextWithLogger(ctx, logger.GetDefault())
	ctx = config.ContextWithConfig(ctx, cfg)
	cmd.SetContext(ctx)
	return nil
}

// loadEnvFile reads a dotenv file. A missing default file is ignored; a
// missing file named explicitly is an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func extractCLIFlags(cmd *cobra.Command) map[string]any {
	out := make(map[string]any)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		path, ok := flagPaths[f.Name]
		if !ok {
			return
		}
		out[path] = flagValue(cmd.Flags(), f)
	})
	return out
}

func flagValue(flags *pflag.FlagSet, f *pflag.Flag) any {
	switch f.Value.Type() {
	case "int":
		if v, err := flags.GetInt(f.Name); err == nil {
			return v
		}
	case "bool":
		if v, err := flags.GetBool(f.Name); err == nil {
			return v
		}
	}
	return f.Value.String()
}
