// Package cli hosts the dataspace command line.
package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	ConfigPath string
	LogFormat  string
	LogLevel   string
	Format     string
	NoColor    bool
	Fields     bool
	// Concurrency overrides the configured saga limit when positive.
	Concurrency int

	// Stdout and Stderr default to the cobra command writers.
	Stdout io.Writer
	Stderr io.Writer

	// Env replaces os.LookupEnv for the environment config layer.
	Env func(key string) (string, bool)
}

var validFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataspace",
		Short: "Drive dataspace transactions against EDC connectors",
		Long: `Publish an asset on a provider connector, run the catalog, negotiation,
transfer and credential stages for every configured consumer, pull the
protected resource, and replay credentials from a third party to check
that they are not reusable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			if opts.Stdout == nil {
				opts.Stdout = cmd.OutOrStdout()
			}
			if opts.Stderr == nil {
				opts.Stderr = cmd.ErrOrStderr()
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "dataspace.yaml", "YAML config file, skipped when missing")
	flags.StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")
	flags.StringVar(&opts.LogLevel, "log-level", "warn", "log level (trace|debug|info|warn|error)")
	flags.StringVar(&opts.Format, "format", "text", "output format (text|json)")
	flags.BoolVar(&opts.NoColor, "no-color", false, "disable colored narration")
	flags.BoolVar(&opts.Fields, "fields", false, "append structured fields to narration lines")
	flags.IntVar(&opts.Concurrency, "concurrency", 0, "maximum concurrent consumer sagas")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newProbeCommand(opts))
	cmd.AddCommand(newLedgerCommand(opts))
	return cmd
}
