package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/promptinfra/internal/ir"
	"github.com/roach88/promptinfra/internal/pipeline"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Salt    string
	Publish bool
	Tags    map[string]string
	Print   bool
}

// GenerateResult is the generate command's output.
type GenerateResult struct {
	DeploymentID         string      `json:"deployment_id"`
	CacheKey             ir.CacheKey `json:"cache_key"`
	CacheHit             bool        `json:"cache_hit"`
	Origin               ir.Tier     `json:"origin,omitempty"`
	Gateway              string      `json:"gateway,omitempty"`
	EstimatedMonthlyCost ir.USD      `json:"estimated_monthly_cost"`
	ResourceCount        int         `json:"resource_count"`
	OverThreshold        bool        `json:"over_threshold,omitempty"`
	ArtifactFile         string      `json:"artifact_file,omitempty"`
	ArtifactDigest       string      `json:"artifact_digest"`
	Publish              PublishView `json:"publish"`
	Artifact             string      `json:"artifact,omitempty"`
}

// PublishView reports a publish attempt.
type PublishView struct {
	Status        string `json:"status"`
	Workspace     string `json:"workspace,omitempty"`
	State         string `json:"state,omitempty"`
	ConfigVersion string `json:"config_version,omitempty"`
	URL           string `json:"url,omitempty"`
	Phase         string `json:"phase,omitempty"`
	Kind          string `json:"kind,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Error         string `json:"error,omitempty"`
}

func newPublishView(o pipeline.PublishOutcome) PublishView {
	v := PublishView{
		Status:        string(o.Status),
		Workspace:     o.Workspace,
		State:         string(o.State),
		ConfigVersion: o.ConfigVersion,
		URL:           o.URL,
		Phase:         string(o.Phase),
		Kind:          string(o.Kind),
		Reason:        string(o.Reason),
	}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return v
}

func (v PublishView) String() string {
	switch v.Status {
	case string(pipeline.PublishPublished):
		return fmt.Sprintf("published to %s (%s)", v.Workspace, v.URL)
	case string(pipeline.PublishFailed):
		return fmt.Sprintf("failed in %s: %s (%s)", v.Phase, v.Kind, v.Error)
	default:
		return v.Status
	}
}

func newGenerateResult(res *pipeline.Result, withArtifact bool) GenerateResult {
	out := GenerateResult{
		DeploymentID:         res.DeploymentID,
		CacheKey:             res.Key,
		CacheHit:             res.Hit,
		Origin:               res.Origin,
		Gateway:              res.Gateway,
		EstimatedMonthlyCost: res.Cost,
		ResourceCount:        res.Resources,
		OverThreshold:        res.OverThreshold,
		ArtifactFile:         res.ArtifactFile,
		ArtifactDigest:       res.Artifact.Digest.String(),
		Publish:              newPublishView(res.Publish),
	}
	if withArtifact {
		out.Artifact = res.Artifact.Text
	}
	return out
}

func (r GenerateResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Deployment:  %s\n", r.DeploymentID)
	if r.CacheHit {
		fmt.Fprintf(&b, "Cache:       hit (%s) %s\n", r.Origin, r.CacheKey)
	} else {
		fmt.Fprintf(&b, "Cache:       miss, generated by %s %s\n", r.Gateway, r.CacheKey)
	}
	fmt.Fprintf(&b, "Resources:   %d\n", r.ResourceCount)
	fmt.Fprintf(&b, "Est. cost:   $%s/month", r.EstimatedMonthlyCost)
	if r.OverThreshold {
		b.WriteString(" (over threshold)")
	}
	b.WriteString("\n")
	if r.ArtifactFile != "" {
		fmt.Fprintf(&b, "Written to:  %s\n", r.ArtifactFile)
	}
	fmt.Fprintf(&b, "Publish:     %s", r.Publish)
	if r.Artifact != "" {
		fmt.Fprintf(&b, "\n\n%s", r.Artifact)
	}
	return b.String()
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate <request...>",
		Short: "Generate Terraform for a request",
		Long: `Generate Terraform for a plain-language infrastructure request.

The request is looked up in the artifact cache first. On a miss the
configured gateways are tried in priority order. Every run is recorded in
the deployment ledger with its estimated monthly cost.

Examples:
  promptinfra generate "a small EC2 instance for a web server"
  promptinfra generate --salt v2 --publish "a VPC with one public subnet"
  promptinfra generate --tag team=payments --format json "an S3 bucket"`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, strings.Join(args, " "), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Salt, "salt", "", "cache key salt (overrides salt_mode)")
	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "publish the artifact to the configured workspace")
	cmd.Flags().StringToStringVar(&opts.Tags, "tag", nil, "extra tag key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Print, "print", false, "include the artifact text in the output")

	return cmd
}

func runGenerate(opts *GenerateOptions, request string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build pipeline", err)
	}

	formatter.VerboseLog("Generating for request: %q", request)
	res, err := p.Run(ctx, request, pipeline.RunOptions{
		Salt:    opts.Salt,
		Publish: opts.Publish,
		Tags:    opts.Tags,
	})
	st := a.cache.Stats()
	formatter.VerboseLog("Cache: hits %v, %d miss(es), %d backfill(s), %d tier failure(s)",
		st.Hits, st.Misses, st.Backfills, st.Failures)
	if err != nil {
		var re *pipeline.RunError
		code := CodeRunFailed
		if errors.As(err, &re) {
			code = string(re.Code)
		}
		if res != nil {
			// The artifact exists; only tracking failed.
			if outErr := formatter.Partial(newGenerateResult(res, opts.Print), code, err.Error()); outErr != nil {
				return outErr
			}
		} else if outErr := formatter.Error(code, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "generation run failed", err)
	}

	out := newGenerateResult(res, opts.Print)
	if res.Publish.Status == pipeline.PublishFailed {
		if err := formatter.Partial(out, CodePublishFailed, res.Publish.Err.Error()); err != nil {
			return err
		}
		return NewExitError(ExitPartial, "artifact recorded but not published")
	}
	return formatter.Success(out)
}
