package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ident"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/memstore"
	"github.com/roach88/shelf/internal/query"
)

// CheckResult holds the outcome of a store audit.
type CheckResult struct {
	Records  int      `json:"records"`
	Lookups  int      `json:"lookups"`
	Problems []string `json:"problems,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Audit the stored records",
		Long: `Read every stored record and check it against the schema, then
compare the backend's answer to an equality lookup on every indexed value
with a brute-force scan of the same records.

Exit codes:
  0 - No problems found
  1 - Invalid records or inconsistent lookups
  2 - Command error (bad config, unreadable store)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			result, err := Check(cmd.Context(), sess.store)
			if err != nil {
				return sess.out.Fail(StoreErrorCode(err), err)
			}
			return outputCheck(sess.out, result)
		},
	}
	return cmd
}

// Check audits a store. Errors are returned only when the store cannot be
// read; findings go into CheckResult.Problems.
func Check(ctx context.Context, st dao.Dao) (*CheckResult, error) {
	s := st.Schema()
	recs, err := st.FetchAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	result := &CheckResult{Records: len(recs)}

	for _, rec := range recs {
		id, _ := rec.ID()
		if err := s.Validate(rec); err != nil {
			result.Problems = append(result.Problems, fmt.Sprintf("record %s: %v", id, err))
		}
	}

	n, err := st.Count(ctx, nil)
	if err != nil {
		return nil, err
	}
	if n != len(recs) {
		result.Problems = append(result.Problems, fmt.Sprintf("count reports %d records, fetch_all returned %d", n, len(recs)))
	}
	if len(result.Problems) > 0 {
		// lookups are meaningless against invalid records
		return result, nil
	}

	ref, err := memstore.Load(s, recs, memstore.Options{
		Generator: ident.SuppliedGenerator{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		result.Problems = append(result.Problems, fmt.Sprintf("records cannot be indexed: %v", err))
		return result, nil
	}

	for _, field := range s.IndexedFields() {
		for _, v := range distinctValues(recs, field) {
			result.Lookups++
			where := query.Eq(field, v)
			want, err := ref.Query(ctx, query.Select{Where: where})
			if err != nil {
				return nil, err
			}
			got, err := st.Query(ctx, query.Select{Where: where})
			if err != nil {
				result.Problems = append(result.Problems, fmt.Sprintf("%s: %v", query.String(where), err))
				continue
			}
			if w, g := idsOf(want), idsOf(got); !slices.Equal(w, g) {
				result.Problems = append(result.Problems, fmt.Sprintf("%s: backend returned %v, scan found %v", query.String(where), g, w))
			}
		}
	}
	return result, nil
}

// distinctValues lists the non-null values of field, in index order.
func distinctValues(recs []ir.Object, field string) []ir.Value {
	var out []ir.Value
	for _, rec := range recs {
		v := rec.Get(field)
		if ir.IsNull(v) {
			continue
		}
		out = append(out, v)
	}
	slices.SortFunc(out, ir.Order)
	return slices.CompactFunc(out, ir.Equal)
}

func idsOf(recs []ir.Object) []ir.ID {
	ids := make([]ir.ID, len(recs))
	for i, rec := range recs {
		ids[i], _ = rec.ID()
	}
	return ids
}

func outputCheck(out *OutputFormatter, result *CheckResult) error {
	if out.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		if len(result.Problems) > 0 {
			response.Status = "error"
			response.Error = &CLIError{Code: ErrCodeCheckFailed, Message: fmt.Sprintf("%d problem(s) found", len(result.Problems))}
		}
		if err := jsonEncode(out.Writer, response); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out.Writer, "Checked %d record(s), %d lookup(s)\n", result.Records, result.Lookups)
		for _, p := range result.Problems {
			fmt.Fprintf(out.Writer, "  ✗ %s\n", p)
		}
		if len(result.Problems) == 0 {
			fmt.Fprintln(out.Writer, "✓ Store consistent")
		}
	}

	if len(result.Problems) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d problem(s) found", ErrCodeCheckFailed, len(result.Problems)))
	}
	return nil
}
