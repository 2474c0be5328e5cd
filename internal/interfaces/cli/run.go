package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/pipeline"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/config"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
)

// runFlags are shared by run and aggregate.
type runFlags struct {
	scenarios  []string
	activities []string
	runID      string
}

func (f *runFlags) register(cmd *cobra.Command, withActivities bool) {
	cmd.Flags().StringSliceVarP(&f.scenarios, "scenario", "s", nil, "scenarios to compute: c, f, p (default: pipeline.scenarios)")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run identifier (default: generated)")
	if withActivities {
		cmd.Flags().StringSliceVarP(&f.activities, "activity", "a", nil, "activity codes to run (default: all declared)")
	}
}

// request turns the flags and configuration into a pipeline request.
func (f *runFlags) request(cfg *config.Config) (pipeline.Request, error) {
	names := f.scenarios
	if len(names) == 0 {
		names = cfg.Pipeline.Scenarios
	}
	req := pipeline.Request{RunID: f.runID, Activities: f.activities, Sectors: cfg.Sectors}
	for _, n := range names {
		scn, err := activity.ParseScenario(n)
		if err != nil {
			return req, err
		}
		req.Scenarios = append(req.Scenarios, scn)
	}
	return req, nil
}

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cumulative impact pipeline",
		Long: "Standardize, weight and reduce every selected activity, compose it with the\n" +
			"habitat layers and aggregate the cumulative impact per sector.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, flags, false)
		},
	}
	flags.register(cmd, true)
	return cmd
}

// NewAggregateCmd creates the aggregate command.
func NewAggregateCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Rebuild sector tables from stored activity tables",
		Long: "Recompute the per-sector and ALL cumulative impact tables from the\n" +
			"per-activity tables of an earlier run, e.g. after editing the sectors.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, flags, true)
		},
	}
	flags.register(cmd, false)
	return cmd
}

func executeRun(cmd *cobra.Command, flags *runFlags, aggregateOnly bool) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	req, err := flags.request(cliCtx.Config)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	var done cleanups
	defer done.run()
	runner, err := newRunner(ctx, cliCtx, &done)
	if err != nil {
		return err
	}

	var report *pipeline.Report
	if aggregateOnly {
		report, err = runner.Aggregate(ctx, req)
	} else {
		report, err = runner.Run(ctx, req)
	}
	if perr := PrintResult(cmd, &reportView{report}); perr != nil && err == nil {
		err = perr
	}
	return err
}

// reportView renders a pipeline report for every output format.
type reportView struct {
	*pipeline.Report
}

func (v *reportView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s %s in %s\n", v.RunID, v.Status, v.Duration.Round(time.Millisecond))
	fmt.Fprintf(&sb, "scenarios: %s\n", strings.Join(v.Scenarios, ", "))
	fmt.Fprintf(&sb, "activities: %s\n", strings.Join(v.Activities, ", "))
	fmt.Fprintf(&sb, "tables written: %d\n", len(v.Tables))
	if len(v.Gaps) > 0 {
		fmt.Fprintf(&sb, "gaps: %d\n", len(v.Gaps))
		for _, g := range v.Gaps {
			fmt.Fprintf(&sb, "  %s\n", g)
		}
	}
	if v.Error != "" {
		fmt.Fprintf(&sb, "error: %s\n", v.Error)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (v *reportView) TableHeaders() []string {
	return []string{"TABLE"}
}

func (v *reportView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Tables))
	for _, t := range v.Tables {
		rows = append(rows, []string{t})
	}
	return rows
}

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check inputs and lookup tables without running the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			cat, err := newCatalog(cliCtx)
			if err != nil {
				return err
			}
			opts := pipeline.OptionsFromConfig(cliCtx.Config.Pipeline)
			res, err := pipeline.NewValidator(cat, opts, cliCtx.Logger).Validate(ctx, cliCtx.Config.Sectors)
			if err != nil {
				return err
			}
			if err := PrintResult(cmd, &validationView{res}); err != nil {
				return err
			}
			if !res.OK() {
				return validationFailed(len(res.Errors()))
			}
			return nil
		},
	}
}

// validationView renders validation findings.
type validationView struct {
	*pipeline.Validation
}

func (v *validationView) String() string {
	if len(v.Findings) == 0 {
		return "no findings"
	}
	var sb strings.Builder
	for _, f := range v.Findings {
		fmt.Fprintf(&sb, "%-7s %s %s: %s\n", f.Severity, f.Code, f.Activity, f.Message)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (v *validationView) TableHeaders() []string {
	return []string{"SEVERITY", "CODE", "ACTIVITY", "MESSAGE"}
}

func (v *validationView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Findings))
	for _, f := range v.Findings {
		rows = append(rows, []string{string(f.Severity), f.Code.String(), f.Activity, f.Message})
	}
	return rows
}
