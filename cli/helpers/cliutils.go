package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Output format constants
const (
	OutputFormatJSON = "json"
	OutputFormatText = "text"
)

// CliError represents a CLI-specific error with enhanced context
type CliError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   string         `json:"details,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (e *CliError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewCliError creates a new CLI error with context
func NewCliError(code, message string, details ...string) *CliError {
	err := &CliError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]any),
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// WithContext adds context to the error
func (e *CliError) WithContext(key string, value any) *CliError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CategorizeError converts well-known failures to structured CLI errors.
// Other errors are returned unchanged.
func CategorizeError(err error) error {
	var cliErr *CliError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &cliErr):
		return cliErr
	case errors.Is(err, context.Canceled):
		return NewCliError("OPERATION_CANCELED", "Operation was canceled by user")
	case errors.Is(err, context.DeadlineExceeded):
		return NewCliError("OPERATION_TIMEOUT", "Operation timed out", err.Error())
	default:
		return err
	}
}

// FormatError renders err for the given output format.
func FormatError(err error, format string) string {
	if err == nil {
		return ""
	}
	if format == OutputFormatJSON {
		return formatErrorJSON(err)
	}
	return formatErrorText(err)
}

func formatErrorJSON(err error) string {
	message, details := extractErrorInfo(err)
	out, marshalErr := json.MarshalIndent(map[string]any{"error": message, "details": details}, "", "  ")
	if marshalErr != nil {
		return `{"error": "JSON marshaling failed", "details": ""}`
	}
	return string(out)
}

func formatErrorText(err error) string {
	message, details := extractErrorInfo(err)
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF6B6B")).
		Bold(true)
	result := style.Render("Error: " + message)
	if details != "" {
		detailStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)
		result += "\n" + detailStyle.Render("Details: "+details)
	}
	return result
}

func extractErrorInfo(err error) (message, details string) {
	var cliErr *CliError
	if errors.As(err, &cliErr) && cliErr != nil {
		return cliErr.Message, cliErr.Details
	}
	return err.Error(), ""
}

// OutputError outputs an error to stderr in the appropriate format
func OutputError(err error, format string) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, FormatError(err, format))
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// OutputFormat reads the --format flag, defaulting to text.
func OutputFormat(cmd *cobra.Command) string {
	if cmd == nil {
		return OutputFormatText
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil || format != OutputFormatJSON {
		return OutputFormatText
	}
	return format
}
