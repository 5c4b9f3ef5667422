package cli

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/promptinfra/internal/config"
	"github.com/roach88/promptinfra/internal/pipeline"
)

// DefaultConfigFile is read when --config is not given and the file exists.
const DefaultConfigFile = "promptinfra.yaml"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	EnvFile    string

	// Lookup reads secrets. Defaults to os.LookupEnv.
	Lookup config.LookupFunc

	// Identity overrides the deployment identity generator (for testing).
	Identity pipeline.IdentityGenerator

	// AWSProbe overrides AWS capability detection (for testing).
	AWSProbe AWSProbe
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the promptinfra CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promptinfra",
		Short: "promptinfra - prompt to tracked Terraform",
		Long: `Turn a plain-language infrastructure request into Terraform.

Generated artifacts are cached by request, every run is recorded in the
deployment ledger with an estimated monthly cost, and artifacts can be
published to a Terraform Cloud workspace.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			setupLogging(opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default ./"+DefaultConfigFile+" if present)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading secrets")

	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewCostsCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))

	return cmd
}

// setupLogging installs a text handler on stderr. Verbose enables debug.
func setupLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
