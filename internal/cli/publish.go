package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/promptinfra/internal/ir"
	"github.com/roach88/promptinfra/internal/publish"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	Workspace string
}

// PublishResult is the publish command's output.
type PublishResult struct {
	DeploymentID string      `json:"deployment_id"`
	CacheKey     ir.CacheKey `json:"cache_key"`
	Publish      PublishView `json:"publish"`
}

func (r PublishResult) String() string {
	return fmt.Sprintf("Deployment %s: %s", r.DeploymentID, r.Publish)
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <deployment-id>",
		Short: "Publish a recorded deployment's artifact",
		Long: `Publish the artifact of an existing deployment to a Terraform Cloud
workspace.

The artifact is read back from the cache by the deployment's cache key and
checked against the recorded digest. Every invocation is a fresh publish
job: a new configuration version and a new upload URL.

Examples:
  promptinfra publish 0192f3a4-5b6c-7d8e-9f01-23456789abcd
  promptinfra publish --workspace staging 0192f3a4-5b6c-7d8e-9f01-23456789abcd`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Workspace, "workspace", "", "target workspace (overrides publish.workspace)")

	return cmd
}

func runPublish(opts *PublishOptions, id string, cmd *cobra.Command) error {
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

	if a.publisher == nil {
		return NewExitError(ExitCommandError, "publishing is not enabled in the configuration")
	}
	workspace := opts.Workspace
	if workspace == "" {
		workspace = a.cfg.Publish.Workspace
	}

	rec, found, err := a.ledger.Find(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read ledger", err)
	}
	if !found {
		return NewExitError(ExitCommandError, fmt.Sprintf("deployment %s not found", id))
	}

	entry, hit, err := a.cache.Get(ctx, rec.CacheKey)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cache", err)
	}
	if !hit {
		return NewExitError(ExitCommandError, fmt.Sprintf("artifact for deployment %s is no longer cached", id))
	}
	if rec.ArtifactDigest != "" && entry.Artifact.Digest.String() != rec.ArtifactDigest {
		return NewExitError(ExitCommandError, fmt.Sprintf("cached artifact for deployment %s does not match the recorded digest", id))
	}
	formatter.VerboseLog("Publishing %d bytes to workspace %s", entry.Artifact.Size, workspace)

	job, pubErr := a.publisher.Publish(ctx, workspace, entry.Artifact)
	view := PublishView{
		Workspace:     workspace,
		State:         string(job.State()),
		ConfigVersion: job.ConfigVersionID(),
	}
	result := PublishResult{DeploymentID: rec.ID, CacheKey: rec.CacheKey}

	if pubErr != nil {
		view.Status = "failed"
		view.Error = pubErr.Error()
		var perr *publish.Error
		if errors.As(pubErr, &perr) {
			view.Phase = string(perr.Phase)
			view.Kind = string(perr.Kind)
			view.Reason = string(perr.Reason())
		}
		result.Publish = view
		if err := formatter.Error(CodePublishFailed, pubErr.Error(), result); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "publish failed", pubErr)
	}

	view.Status = "published"
	view.URL = a.publisher.WorkspaceURL(workspace)
	result.Publish = view

	updated := rec.Clone()
	updated.Status = ir.StatusPublished
	if err := a.ledger.Record(ctx, updated); err != nil {
		if outErr := formatter.Partial(result, CodeLedgerWriteFailed, err.Error()); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "published but failed to update ledger", err)
	}
	return formatter.Success(result)
}
