package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// ConfigFile is an explicit config file; shelf.yaml is used otherwise.
	ConfigFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the shelf CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shelf",
		Short: "shelf - embedded indexed record store",
		Long: `An indexed record store with interchangeable backends.

Records of one collection are declared in CUE, stored in memory, YAML files,
a bbolt database or SQLite, and queried with predicates such as
"year > 1960 and tags contains 'classic'".

Configuration comes from shelf.yaml (or --config), SHELF_* environment
variables and flags, in increasing order of precedence.`,
		SilenceErrors: true, // main prints the error once, on stderr
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "config file (default ./shelf.yaml)")

	// Store flags; names match the config keys with "_" written as "-"
	flags.String("backend", "memory", "storage backend (memory|file|bolt|sqlite)")
	flags.String("path", "", "data directory or database file")
	flags.String("schema", "schema", "CUE file or directory declaring the collection")
	flags.String("collection", "", "collection name (optional when the schema declares one)")
	flags.String("id-strategy", "uuid", "id generation for records without _id (uuid|content|supplied)")
	flags.Bool("cache", false, "serve reads from an in-memory cache")
	flags.Bool("strict-fetch-many", false, "fail get of several ids when any is missing")
	flags.Bool("ignore-missing-delete", false, "treat delete of a missing id as success")
	flags.String("log-level", "info", "log level (debug|info|warn|error)")
	flags.Bool("metrics", false, "print operation metrics to stderr on exit")

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
