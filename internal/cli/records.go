package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/schema"
)

// parseRecord reads a record given as JSON or YAML flow syntax, e.g.
// '{"title": "Dune", "year": 1965}' or '{title: Dune, year: 1965}'.
func parseRecord(s *schema.Schema, src string) (ir.Object, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(src), &raw); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("invalid record: expected an object")
	}
	return s.Decode(raw)
}

// batchSummary is the JSON form of a batch outcome.
type batchSummary struct {
	Succeeded []ir.ID          `json:"succeeded"`
	Failed    map[ir.ID]string `json:"failed,omitempty"`
}

func summarize(res dao.BatchResult) batchSummary {
	sum := batchSummary{Succeeded: res.Succeeded()}
	if sum.Succeeded == nil {
		sum.Succeeded = []ir.ID{}
	}
	for id, err := range res.Failed() {
		if sum.Failed == nil {
			sum.Failed = make(map[ir.ID]string)
		}
		sum.Failed[id] = err.Error()
	}
	return sum
}

// outputBatch prints a batch outcome and fails when any member failed.
func outputBatch(out *OutputFormatter, verb string, res dao.BatchResult) error {
	sum := summarize(res)
	if out.Format == "json" {
		if err := out.Success(sum); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out.Writer, "%s %d record(s)\n", verb, len(sum.Succeeded))
		for _, id := range dao.SortedIDs(sum.Failed) {
			fmt.Fprintf(out.Writer, "  ✗ %s: %s\n", id, sum.Failed[id])
		}
	}
	if len(sum.Failed) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed", len(sum.Failed)))
	}
	return nil
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <record>...",
		Short: "Create records",
		Long: `Create one or more records given as JSON or YAML objects.

Records without an _id get one from the configured id strategy.

Examples:
  shelf put '{"title": "Dune", "year": 1965}'
  shelf put '{_id: b2, title: Solaris, year: 1961}' '{_id: b3, title: Ubik, year: 1969}'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			recs := make([]ir.Object, len(args))
			for i, arg := range args {
				if recs[i], err = parseRecord(sess.schema, arg); err != nil {
					return sess.out.Fail(ErrCodeBadInput, err)
				}
			}

			if len(recs) == 1 {
				created, err := sess.store.Create(cmd.Context(), recs[0])
				if err != nil {
					return sess.out.Fail(StoreErrorCode(err), err)
				}
				return sess.out.Records([]ir.Object{created})
			}
			return outputBatch(sess.out, "Created", sess.store.CreateMany(cmd.Context(), recs))
		},
	}
	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var fields []string

	cmd := &cobra.Command{
		Use:   "get [id]...",
		Short: "Fetch records by id",
		Long: `Fetch records by id, or every record when no id is given.

Examples:
  shelf get b1
  shelf get b1 b2 --fields title,year
  shelf get --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()
			switch len(args) {
			case 0:
				recs, err := sess.store.FetchAll(ctx, fields)
				if err != nil {
					return sess.out.Fail(StoreErrorCode(err), err)
				}
				return sess.out.Records(recs)
			case 1:
				rec, err := sess.store.Fetch(ctx, ir.ID(args[0]), fields)
				if err != nil {
					return sess.out.Fail(StoreErrorCode(err), err)
				}
				return sess.out.Records([]ir.Object{rec})
			default:
				ids := make([]ir.ID, len(args))
				for i, arg := range args {
					ids[i] = ir.ID(arg)
				}
				found, err := sess.store.FetchMany(ctx, ids, fields)
				if err != nil {
					return sess.out.Fail(StoreErrorCode(err), err)
				}
				recs := make([]ir.Object, 0, len(found))
				for _, id := range dao.SortedIDs(found) {
					recs = append(recs, found[id])
				}
				return sess.out.Records(recs)
			}
		},
	}

	cmd.Flags().StringSliceVar(&fields, "fields", nil, "fields to return (_id is always included)")
	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id> <changes>",
		Short: "Update fields of a record",
		Long: `Merge the given fields into a record. Fields not named are kept;
a field set to null is cleared. The _id cannot change.

Example:
  shelf update b1 '{rating: 4.8, instock: true}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			changes, err := parseRecord(sess.schema, args[1])
			if err != nil {
				return sess.out.Fail(ErrCodeBadInput, err)
			}
			updated, err := sess.store.Update(cmd.Context(), ir.ID(args[0]), changes)
			if err != nil {
				return sess.out.Fail(StoreErrorCode(err), err)
			}
			return sess.out.Records([]ir.Object{updated})
		},
	}
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "delete <id>... | --all",
		Short: "Delete records",
		Long: `Delete records by id, or every record with --all.

Examples:
  shelf delete b1
  shelf delete b1 b2 b3
  shelf delete --all`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return NewExitError(ExitCommandError, "give record ids or --all, not both")
			}

			sess, err := openSession(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()
			if all {
				n, err := sess.store.DeleteAll(ctx)
				if err != nil {
					return sess.out.Fail(StoreErrorCode(err), err)
				}
				if sess.out.Format == "json" {
					return sess.out.Success(map[string]int{"deleted": n})
				}
				fmt.Fprintf(sess.out.Writer, "Deleted %d record(s)\n", n)
				return nil
			}

			if len(args) == 1 {
				if err := sess.store.Delete(ctx, ir.ID(args[0])); err != nil {
					return sess.out.Fail(StoreErrorCode(err), err)
				}
				if sess.out.Format == "json" {
					return sess.out.Success(map[string]int{"deleted": 1})
				}
				fmt.Fprintf(sess.out.Writer, "Deleted %s\n", args[0])
				return nil
			}

			ids := make([]ir.ID, len(args))
			for i, arg := range args {
				ids[i] = ir.ID(arg)
			}
			return outputBatch(sess.out, "Deleted", sess.store.DeleteMany(ctx, ids))
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "delete every record")
	return cmd
}

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	Order  string
	Fields []string
	Limit  int
	Offset int
	First  bool
	Count  bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [predicate]",
		Short: "Find records matching a predicate",
		Long: `Find records matching a predicate. Without a predicate every record matches.

Predicates compare indexed fields with = != < <= > >=, test membership
with in (...) and not in (...), test list or object fields with contains,
and combine with and / or and parentheses.

Examples:
  shelf query "year > 1960 and rating >= 4.5" --order=-year --limit 10
  shelf query "tags contains 'classic'" --fields title
  shelf query "title in ('Dune', 'Ubik')" --count`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			var where query.Predicate
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				if where, err = query.Parse(args[0], sess.schema); err != nil {
					return sess.out.Fail(ErrCodeInvalidPredicate, err)
				}
				sess.out.VerboseLog("Predicate: %s", query.String(where))
			}

			if opts.Count {
				n, err := sess.store.Count(cmd.Context(), where)
				if err != nil {
					return sess.out.Fail(StoreErrorCode(err), err)
				}
				if sess.out.Format == "json" {
					return sess.out.Success(map[string]int{"count": n})
				}
				fmt.Fprintln(sess.out.Writer, n)
				return nil
			}

			order, err := query.ParseOrder(opts.Order)
			if err != nil {
				return sess.out.Fail(ErrCodeInvalidPredicate, err)
			}
			recs, err := sess.store.Query(cmd.Context(), query.Select{
				Where:   where,
				Fields:  opts.Fields,
				OrderBy: order,
				First:   opts.First,
				Limit:   opts.Limit,
				Offset:  opts.Offset,
			})
			if err != nil {
				return sess.out.Fail(StoreErrorCode(err), err)
			}
			return sess.out.Records(recs)
		},
	}

	cmd.Flags().StringVar(&opts.Order, "order", "", `sort keys, "-" for descending (e.g. "-year,title")`)
	cmd.Flags().StringSliceVar(&opts.Fields, "fields", nil, "fields to return (_id is always included)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of records (0 = no limit)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "records to skip after sorting")
	cmd.Flags().BoolVar(&opts.First, "first", false, "return at most one record")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "print the number of matches instead")
	return cmd
}
