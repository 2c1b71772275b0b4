package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/shelf/internal/backend"
	"github.com/roach88/shelf/internal/compiler"
	"github.com/roach88/shelf/internal/config"
	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/schema"
)

// LoadError represents an error that occurred while loading a schema.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSchema compiles the named collection from path. With an empty name
// the schema must declare exactly one collection.
func LoadSchema(path, name string) (*schema.Schema, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema not found: %s", path)}
	}

	if name != "" {
		s, err := compiler.LoadCollection(path, name)
		if err != nil {
			return nil, convertCompileError(err)
		}
		return s, nil
	}

	schemas, errs := compiler.LoadCollections(path)
	if len(errs) > 0 {
		return nil, convertCompileError(errs[0])
	}
	switch len(schemas) {
	case 1:
		return schemas[0], nil
	default:
		names := make([]string, len(schemas))
		for i, s := range schemas {
			names[i] = s.Name()
		}
		return nil, &LoadError{
			Code:    ErrCodeCollection,
			Message: fmt.Sprintf("%s declares %d collections (%s); choose one with --collection", path, len(schemas), strings.Join(names, ", ")),
		}
	}
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeBuildFailed,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// session is an open store plus what was needed to open it.
type session struct {
	cfg      *config.Config
	schema   *schema.Schema
	store    dao.Dao
	logger   *slog.Logger
	registry *prometheus.Registry
	out      *OutputFormatter
}

// openSession resolves configuration from file, environment and cmd's
// flags, compiles the collection and opens the configured backend.
// Failures are reported through the formatter and returned as ExitErrors.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(config.Options{File: opts.ConfigFile, Flags: cmd.Flags()})
	if err != nil {
		return nil, out.Fail(ErrCodeConfig, err)
	}

	level, _ := cfg.Level() // validated by Load
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	s, err := LoadSchema(cfg.Schema, cfg.Collection)
	if err != nil {
		var loadErr *LoadError
		errors.As(err, &loadErr)
		_ = out.Error(loadErr.Code, loadErr.Message, nil)
		return nil, WrapExitError(ExitCommandError, loadErr.Code, err)
	}
	out.VerboseLog("Loaded collection %s from %s", s.Name(), cfg.Schema)

	sess := &session{cfg: cfg, schema: s, logger: logger, out: out}
	bopts := backend.Options{Logger: logger}
	if cfg.Metrics {
		sess.registry = prometheus.NewRegistry()
		bopts.Registerer = sess.registry
	}

	st, err := backend.Open(ctx, cfg, s, bopts)
	if err != nil {
		return nil, out.Fail(ErrCodeOpenFailed, err)
	}
	sess.store = st
	return sess, nil
}

// Close closes the store and, when metrics are enabled, writes them to
// the diagnostic writer in the Prometheus text format.
func (s *session) Close() error {
	err := backend.Close(s.store)
	if s.registry != nil {
		if werr := writeMetrics(s.out.GetErrWriter(), s.registry); werr != nil {
			s.logger.Warn("failed to write metrics", "error", werr)
		}
	}
	return err
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
