package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/promptinfra/internal/codec"
	"github.com/roach88/promptinfra/internal/cost"
	"github.com/roach88/promptinfra/internal/ir"
	"github.com/roach88/promptinfra/internal/ledger"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Key      bool
	Artifact bool
}

// DeploymentView is the show command's output for a deployment.
type DeploymentView struct {
	Record   ir.DeploymentRecord `json:"record"`
	Cached   bool                `json:"cached"`
	Origin   ir.Tier             `json:"origin,omitempty"`
	Artifact string              `json:"artifact,omitempty"`

	// CostBreakdown re-prices the cached artifact against the current rate
	// table. Empty when the artifact is not cached.
	CostBreakdown []cost.Line `json:"cost_breakdown,omitempty"`
}

func (v DeploymentView) String() string {
	doc, err := ledger.EncodeDocument(v.Record)
	if err != nil {
		return fmt.Sprintf("deployment %s: %v", v.Record.ID, err)
	}
	var b strings.Builder
	b.Write(doc)
	if v.Cached {
		fmt.Fprintf(&b, "artifact cached (%s)", v.Origin)
	} else {
		b.WriteString("artifact not cached")
	}
	for _, line := range v.CostBreakdown {
		fmt.Fprintf(&b, "\n  %-24s x%d @ %s = %s", line.Marker, line.Count, line.Unit, line.Subtotal)
	}
	if v.Artifact != "" {
		fmt.Fprintf(&b, "\n\n%s", v.Artifact)
	}
	return b.String()
}

// CacheEntryView is the show command's output for a cache key.
type CacheEntryView struct {
	Key        ir.CacheKey `json:"key"`
	Path       string      `json:"path"`
	Size       int         `json:"size"`
	Digest     string      `json:"digest"`
	WrittenAt  time.Time   `json:"written_at"`
	Diagnostic string      `json:"diagnostic"`
	Artifact   string      `json:"artifact,omitempty"`
}

func (v CacheEntryView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Key:      %s\n", v.Key)
	fmt.Fprintf(&b, "Path:     %s\n", v.Path)
	fmt.Fprintf(&b, "Size:     %d\n", v.Size)
	fmt.Fprintf(&b, "Digest:   %s\n", v.Digest)
	fmt.Fprintf(&b, "Written:  %s\n", v.WrittenAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Envelope: %s", v.Diagnostic)
	if v.Artifact != "" {
		fmt.Fprintf(&b, "\n\n%s", v.Artifact)
	}
	return b.String()
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <deployment-id | cache-key>",
		Short: "Show a deployment record or a cache entry",
		Long: `Show one deployment record, or with --key, one local cache entry.

A cache entry is printed with its envelope in CBOR diagnostic notation.

Examples:
  promptinfra show 0192f3a4-5b6c-7d8e-9f01-23456789abcd
  promptinfra show --artifact 0192f3a4-5b6c-7d8e-9f01-23456789abcd
  promptinfra show --key 3f1c0e5a9b7d2c4e6f8a0b1c2d3e4f50`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Key, "key", false, "treat the argument as a cache key")
	cmd.Flags().BoolVar(&opts.Artifact, "artifact", false, "include the artifact text")

	return cmd
}

func runShow(opts *ShowOptions, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.Key {
		return showCacheEntry(ctx, a, formatter, ir.CacheKey(arg), opts.Artifact)
	}

	rec, found, err := a.ledger.Find(ctx, arg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read ledger", err)
	}
	if !found {
		return NewExitError(ExitCommandError, fmt.Sprintf("deployment %s not found", arg))
	}

	view := DeploymentView{Record: rec}
	if rec.CacheKey != "" {
		entry, hit, err := a.cache.Get(ctx, rec.CacheKey)
		if err != nil {
			formatter.VerboseLog("Cache read failed: %v", err)
		}
		if hit {
			view.Cached = true
			view.Origin = entry.Origin
			view.CostBreakdown = a.estimator.Breakdown(entry.Artifact.Text)
			if opts.Artifact {
				view.Artifact = entry.Artifact.Text
			}
		}
	}
	return formatter.Success(view)
}

func showCacheEntry(ctx context.Context, a *app, formatter *OutputFormatter, key ir.CacheKey, withArtifact bool) error {
	if !key.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("%q is not a cache key", key))
	}

	raw, err := a.local.ReadRaw(key)
	if errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("cache key %s not in the local tier", key))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cache entry", err)
	}
	diag, err := codec.Diagnose(raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "cache entry is not valid CBOR", err)
	}

	entry, hit, err := a.local.Get(ctx, key)
	if err != nil {
		return WrapExitError(ExitCommandError, "cache entry is corrupt", err)
	}
	if !hit {
		return NewExitError(ExitCommandError, fmt.Sprintf("cache key %s not in the local tier", key))
	}

	view := CacheEntryView{
		Key:        key,
		Path:       a.local.Path(key),
		Size:       entry.Artifact.Size,
		Digest:     entry.Artifact.Digest.String(),
		WrittenAt:  entry.WrittenAt,
		Diagnostic: diag,
	}
	if withArtifact {
		view.Artifact = entry.Artifact.Text
	}
	return formatter.Success(view)
}
