package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/compozy/transcripts/cli/helpers"
	"github.com/compozy/transcripts/engine/infra/bootstrap"
	"github.com/compozy/transcripts/pkg/config"
	"github.com/compozy/transcripts/pkg/logger"
)

// CommandExecutor gives command handlers access to the loaded configuration
// and the lazily built service components.
type CommandExecutor struct {
	cfg        *config.Config
	components *bootstrap.Components
	format     string
}

// HandlerFunc defines the signature for command handlers.
type HandlerFunc func(ctx context.Context, cmd *cobra.Command, executor *CommandExecutor, args []string) error

// NewCommandExecutor reads the configuration attached by the root command.
func NewCommandExecutor(cmd *cobra.Command) (*CommandExecutor, error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return nil, errors.New("configuration missing from context")
	}
	components, err := bootstrap.New(cfg)
	if err != nil {
		return nil, err
	}
	return &CommandExecutor{
		cfg:        cfg,
		components: components,
		format:     helpers.OutputFormat(cmd),
	}, nil
}

func (e *CommandExecutor) Config() *config.Config {
	return e.cfg
}

func (e *CommandExecutor) Components() *bootstrap.Components {
	return e.components
}

// Format is the output format selected with --format.
func (e *CommandExecutor) Format() string {
	return e.format
}

// Execute runs handler and releases every component it built.
func (e *CommandExecutor) Execute(ctx context.Context, cmd *cobra.Command, handler HandlerFunc, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer e.components.Close(ctx)
	return handler(ctx, cmd, e, args)
}

// ExecuteCommand is a convenience function that combines executor creation and execution.
func ExecuteCommand(cmd *cobra.Command, handler HandlerFunc, args []string) error {
	executor, err := NewCommandExecutor(cmd)
	if err != nil {
		return HandleCommonErrors(err, helpers.OutputFormat(cmd))
	}
	ctx := cmd.Context()
	logger.FromContext(ctx).Debug("Executing command", "command", cmd.Name())
	return HandleCommonErrors(executor.Execute(ctx, cmd, handler, args), executor.format)
}

// HandleCommonErrors provides consistent error handling across all commands.
func HandleCommonErrors(err error, format string) error {
	if err == nil {
		return nil
	}
	categorized := helpers.CategorizeError(err)
	helpers.OutputError(categorized, format)
	return categorized
}
