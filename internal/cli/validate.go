package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"github.com/spf13/cobra"

	"github.com/roach88/shelf/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                       `json:"valid"`
	Collections []CollectionSummary        `json:"collections,omitempty"`
	Errors      []compiler.ValidationError `json:"errors,omitempty"`
}

// CollectionSummary describes one declared collection.
type CollectionSummary struct {
	Name    string   `json:"name"`
	Fields  int      `json:"fields"`
	Indexed []string `json:"indexed"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema-path]",
		Short: "Validate collection declarations",
		Long: `Validate the CUE collection declarations in a file or directory.

Reports every problem in one pass: unknown types, duplicate or reserved
field names, and indexes on list or object fields. Defaults to the
configured schema path.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("schema")
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := os.Stat(path); err != nil {
		return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("schema not found: %s", path), nil)
	}
	files, err := compiler.FindCUEFiles(path)
	if err != nil {
		return outputValidateError(formatter, ErrCodeScanError, fmt.Sprintf("error scanning %s: %v", path, err), nil)
	}
	if len(files) == 0 {
		return outputValidateError(formatter, ErrCodeNoFiles, fmt.Sprintf("no CUE files found in %s", path), nil)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", len(files), path)

	value, err := compiler.LoadValue(path)
	if err != nil {
		loadErr := convertCompileError(err)
		return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
	}

	summaries, validationErrors := validateAll(value, formatter)
	if len(summaries) == 0 && len(validationErrors) == 0 {
		validationErrors = append(validationErrors, compiler.ValidationError{
			Field:   "collection",
			Message: "no collections declared",
			Code:    ErrCodeGeneric,
		})
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}
	return outputValidateSuccess(formatter, summaries)
}

// validateAll validates every collection in the CUE value without
// stopping at the first problem.
func validateAll(value cue.Value, formatter *OutputFormatter) ([]CollectionSummary, []compiler.ValidationError) {
	var (
		summaries []CollectionSummary
		allErrors []compiler.ValidationError
	)

	collections := value.LookupPath(cue.ParsePath("collection"))
	if !collections.Exists() {
		return nil, nil
	}
	iter, err := collections.Fields()
	if err != nil {
		return nil, []compiler.ValidationError{{Field: "collection", Message: err.Error(), Code: ErrCodeGeneric}}
	}

	for iter.Next() {
		name := iter.Label()
		formatter.VerboseLog("Validating collection: %s", name)

		decl, err := compiler.ParseCollection(iter.Value())
		if err != nil {
			allErrors = append(allErrors, toValidationError("collection."+name, err))
			continue
		}
		if errs := compiler.Validate(decl); len(errs) > 0 {
			allErrors = append(allErrors, errs...)
			continue
		}
		s, err := decl.Schema()
		if err != nil {
			allErrors = append(allErrors, toValidationError("collection."+name, err))
			continue
		}
		summaries = append(summaries, CollectionSummary{
			Name:    s.Name(),
			Fields:  len(s.Fields()) - 1, // without _id
			Indexed: s.IndexedFields(),
		})
	}
	return summaries, allErrors
}

func toValidationError(field string, err error) compiler.ValidationError {
	var cErr *compiler.CompileError
	if errors.As(err, &cErr) {
		ve := compiler.ValidationError{Field: cErr.Field, Message: cErr.Message, Code: ErrCodeBuildFailed, Pos: cErr.Pos}
		if cErr.Pos.IsValid() {
			ve.Line = cErr.Pos.Line()
		}
		return ve
	}
	return compiler.ValidationError{Field: field, Message: err.Error(), Code: ErrCodeGeneric}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, summaries []CollectionSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Collections: summaries})
	}

	for _, s := range summaries {
		fmt.Fprintf(formatter.Writer, "  %s: %d field(s), indexed %v\n", s.Name, s.Fields, s.Indexed)
	}
	fmt.Fprintln(formatter.Writer, "✓ All collections valid")
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateSchema validates all collections at path.
// This is a helper function for external callers.
func ValidateSchema(path string) ([]compiler.ValidationError, error) {
	value, err := compiler.LoadValue(path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	silent := &OutputFormatter{Format: "text", Writer: io.Discard}
	_, errs := validateAll(value, silent)
	return errs, nil
}
