package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Create records from a YAML or JSON file",
		Long: `Create every record in a file. The file holds a list of records, or a
stream of YAML documents each holding a record or a list of records. JSON
arrays are accepted as well. "-" reads standard input.

Records are created as one batch: a record that fails (duplicate id,
schema violation) is reported without stopping the others.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			data, err := readInput(args[0], cmd.InOrStdin())
			if err != nil {
				return sess.out.Fail(ErrCodeNotFound, err)
			}
			recs, err := parseRecords(sess.schema, data)
			if err != nil {
				return sess.out.Fail(ErrCodeBadInput, err)
			}
			sess.out.VerboseLog("Importing %d record(s) from %s", len(recs), args[0])

			return outputBatch(sess.out, "Imported", sess.store.CreateMany(cmd.Context(), recs))
		},
	}
	return cmd
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// parseRecords decodes every record in a YAML stream.
func parseRecords(s *schema.Schema, data []byte) ([]ir.Object, error) {
	var recs []ir.Object
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for doc := 0; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}

		var raws []map[string]any
		content := &node
		if content.Kind == yaml.DocumentNode && len(content.Content) == 1 {
			content = content.Content[0]
		}
		switch content.Kind {
		case yaml.SequenceNode:
			err = content.Decode(&raws)
		case yaml.MappingNode:
			var raw map[string]any
			err = content.Decode(&raw)
			raws = append(raws, raw)
		default:
			err = fmt.Errorf("expected a record or a list of records at line %d", content.Line)
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}

		for i, raw := range raws {
			// Values the schema cannot type are passed on as is, so the
			// store rejects that record alone.
			rec, err := s.Decode(raw)
			if err != nil {
				if rec, err = ir.ObjectFromMap(raw); err != nil {
					return nil, fmt.Errorf("document %d, record %d: %w", doc, i, err)
				}
			}
			recs = append(recs, rec)
		}
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("no records found")
	}
	return recs, nil
}
