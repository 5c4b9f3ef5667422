package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/promptinfra/internal/ir"
	"github.com/roach88/promptinfra/internal/ledger"
)

// CostsOptions holds flags for the costs command.
type CostsOptions struct {
	*RootOptions
	Status string
}

// DeploymentSummary is one ledger row in the costs report.
type DeploymentSummary struct {
	DeploymentID         string              `json:"deployment_id"`
	CreatedAt            time.Time           `json:"created_at"`
	Prompt               string              `json:"prompt"`
	ResourceCount        int                 `json:"resource_count"`
	EstimatedMonthlyCost ir.USD              `json:"estimated_monthly_cost"`
	Status               ir.DeploymentStatus `json:"status"`
}

// CostsReport is the costs command's output.
type CostsReport struct {
	Backend          string              `json:"backend"`
	Deployments      []DeploymentSummary `json:"deployments"`
	TotalResources   int                 `json:"total_resources"`
	TotalMonthlyCost ir.USD              `json:"total_monthly_cost"`
}

func (r CostsReport) String() string {
	if len(r.Deployments) == 0 {
		return "No deployments recorded."
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPLOYMENT\tCREATED\tSTATUS\tRESOURCES\tMONTHLY\tPROMPT")
	for _, d := range r.Deployments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t$%s\t%s\n",
			d.DeploymentID, d.CreatedAt.Format(time.DateOnly), d.Status,
			d.ResourceCount, d.EstimatedMonthlyCost, truncatePrompt(d.Prompt, 40))
	}
	tw.Flush()
	fmt.Fprintf(&b, "\n%d deployment(s), %d resource(s), $%s/month estimated",
		len(r.Deployments), r.TotalResources, r.TotalMonthlyCost)
	return b.String()
}

func truncatePrompt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// NewCostsCommand creates the costs command.
func NewCostsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CostsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Summarize recorded deployments and their estimated cost",
		Long: `List every deployment in the ledger with its resource count and
estimated monthly cost, followed by totals.

Examples:
  promptinfra costs
  promptinfra costs --status published --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCosts(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "only include deployments with this status")

	return cmd
}

func runCosts(opts *CostsOptions, cmd *cobra.Command) error {
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

	records, err := a.ledger.ListAll(ctx).Collect()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list deployments", err)
	}
	if opts.Status != "" {
		records = slices.DeleteFunc(records, func(r ir.DeploymentRecord) bool {
			return string(r.Status) != opts.Status
		})
	}
	formatter.VerboseLog("Read %d deployment(s) from %s ledger", len(records), a.ledger.Backend())

	return formatter.Success(buildCostsReport(a.ledger.Backend(), records))
}

func buildCostsReport(backend string, records []ir.DeploymentRecord) CostsReport {
	slices.SortFunc(records, func(a, b ir.DeploymentRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	report := CostsReport{
		Backend:     backend,
		Deployments: make([]DeploymentSummary, 0, len(records)),
		TotalResources: ledger.SumField(slices.Values(records), func(r ir.DeploymentRecord) int {
			return r.ResourceCount
		}),
		TotalMonthlyCost: ledger.SumField(slices.Values(records), func(r ir.DeploymentRecord) ir.USD {
			return r.EstimatedMonthlyCost
		}),
	}
	for _, r := range records {
		report.Deployments = append(report.Deployments, DeploymentSummary{
			DeploymentID:         r.ID,
			CreatedAt:            r.CreatedAt,
			Prompt:               r.Prompt,
			ResourceCount:        r.ResourceCount,
			EstimatedMonthlyCost: r.EstimatedMonthlyCost,
			Status:               r.Status,
		})
	}
	return report
}
