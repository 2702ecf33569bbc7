package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"safegym/internal/config"
	"safegym/internal/model"
	safegym "safegym/pkg/safegym"
)

// runFlags override config values when set on the command line.
type runFlags struct {
	env        string
	episodes   int
	policy     string
	action     string
	seed       int64
	mask       bool
	noMask     bool
	debug      bool
	trace      bool
	stepLog    bool
	maxSteps   int
	artifacts  string
	metricsOut string
}

func (f *runFlags) register(cmd *cobra.Command) {
	def := config.Default()
	flags := cmd.Flags()
	flags.StringVar(&f.env, "env", def.Env, "environment name")
	flags.IntVar(&f.episodes, "episodes", def.Episodes, "number of episodes")
	flags.StringVar(&f.policy, "policy", def.Policy, "policy: random|constant|goal_seeker")
	flags.StringVar(&f.action, "action", "", "constant policy action as forward,turn")
	flags.Int64Var(&f.seed, "seed", def.Seed, "random seed")
	flags.BoolVar(&f.mask, "mask", def.Masked, "wrap the environment with the action limiter")
	flags.BoolVar(&f.noMask, "no-mask", false, "run without the action limiter")
	flags.BoolVar(&f.debug, "debug", false, "replace policy actions with the task debug action")
	flags.BoolVar(&f.trace, "trace", false, "capture per-step limiter traces")
	flags.BoolVar(&f.stepLog, "step-log", false, "log every limiter decision at info level (otherwise only at --log-level debug)")
	flags.IntVar(&f.maxSteps, "max-steps", 0, "episode step limit (0 keeps the environment default)")
	flags.StringVar(&f.artifacts, "artifacts", "", "write run artifacts under this directory")
	flags.StringVar(&f.metricsOut, "metrics-out", "", "write limiter metrics in Prometheus text format to this file")
}

func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("env") {
		cfg.Env = f.env
	}
	if flags.Changed("episodes") {
		cfg.Episodes = f.episodes
	}
	if flags.Changed("policy") {
		cfg.Policy = f.policy
	}
	if flags.Changed("action") {
		action, err := parseAction(f.action)
		if err != nil {
			return err
		}
		cfg.PolicyAction = action[:]
	}
	if flags.Changed("seed") {
		cfg.Seed = f.seed
	}
	if flags.Changed("mask") {
		cfg.Masked = f.mask
	}
	if f.noMask {
		cfg.Masked = false
	}
	if flags.Changed("debug") {
		cfg.Debug = f.debug
	}
	if flags.Changed("trace") {
		cfg.Trace = f.trace
	}
	if flags.Changed("step-log") {
		cfg.StepLog = f.stepLog
	}
	if flags.Changed("max-steps") {
		cfg.World.MaxSteps = f.maxSteps
	}
	if flags.Changed("artifacts") {
		cfg.Artifacts = f.artifacts
	}
	if flags.Changed("metrics-out") {
		cfg.MetricsOut = f.metricsOut
	}
	return cfg.Validate()
}

func runRequest(cfg config.Config) (safegym.RunRequest, error) {
	rc, err := cfg.RunConfig()
	if err != nil {
		return safegym.RunRequest{}, err
	}
	return safegym.RunRequest{
		Env:          rc.Env,
		World:        rc.EnvOptions,
		Episodes:     rc.Episodes,
		Policy:       rc.Policy,
		PolicyAction: rc.PolicyParams,
		Seed:         rc.Seed,
		Masked:       rc.Masked,
		Debug:        rc.Debug,
		Trace:        rc.CaptureTrace,
		StepLog:      rc.StepLog,
		BandStart:    rc.Band.Start,
		BandEnd:      rc.Band.End,
		Export:       cfg.Artifacts != "",
		MetricsOut:   cfg.MetricsOut,
	}, nil
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run episodes and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, &cfg); err != nil {
				return err
			}
			req, err := runRequest(cfg)
			if err != nil {
				return err
			}
			client, err := g.client(cmd, cfg, cfg.Artifacts)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			printRunSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newCompareCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run masked and unmasked with the same seed and compare",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, &cfg); err != nil {
				return err
			}
			req, err := runRequest(cfg)
			if err != nil {
				return err
			}
			client, err := g.client(cmd, cfg, cfg.Artifacts)
			if err != nil {
				return err
			}
			defer client.Close()

			report, err := client.Compare(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			table := tablewriter.NewWriter(out)
			table.Header("Mode", "Run ID", "Episodes", "Mean Return", "Cost Rate", "Intervention Rate", "Goal Rate")
			for _, row := range []struct {
				mode    string
				summary safegym.RunSummary
			}{
				{"masked", report.Masked},
				{"unmasked", report.Unmasked},
			} {
				s := row.summary.Summary
				table.Append(row.mode, row.summary.RunID, strconv.Itoa(s.Episodes),
					formatFloat(s.MeanReturn), formatFloat(s.CostRate),
					formatFloat(s.InterventionRate), formatFloat(s.GoalRate))
			}
			table.Render()
			fmt.Fprintf(out, "cost_reduction=%s\n", formatFloat(report.CostReduction))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newEnvsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "envs",
		Short: "List registered environments with their sensors and actuators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Env", "Sensors", "Actuators")
			for _, info := range safegym.Catalog() {
				table.Append(info.Name, strings.Join(info.Sensors, ","), strings.Join(info.Actuators, ","))
			}
			table.Render()
			return nil
		},
	}
}

func newRunsCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List persisted runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := g.client(cmd, cfg, "")
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := client.Runs(cmd.Context(), safegym.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Run ID", "Created", "Env", "Policy", "Masked", "Episodes", "Mean Return", "Cost Rate", "Intervention Rate")
			for _, item := range items {
				table.Append(item.RunID, item.CreatedAtUTC, item.Env, item.Policy,
					strconv.FormatBool(item.Masked), strconv.Itoa(item.Summary.Episodes),
					formatFloat(item.Summary.MeanReturn), formatFloat(item.Summary.CostRate),
					formatFloat(item.Summary.InterventionRate))
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

func newEpisodesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "episodes <run-id>",
		Short: "List the episodes of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := g.client(cmd, cfg, "")
			if err != nil {
				return err
			}
			defer client.Close()

			episodes, err := client.Episodes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printEpisodes(cmd.OutOrStdout(), episodes)
			return nil
		},
	}
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a persisted run with its episodes and trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := g.client(cmd, cfg, "")
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted run_id=%s\n", args[0])
			return nil
		},
	}
}

func newEnvelopeCmd() *cobra.Command {
	var (
		forward, backward  float64
		bandStart, bandEnd float64
		action             string
	)
	cmd := &cobra.Command{
		Use:   "envelope",
		Short: "Print the limiter envelope for given hazard proximities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := safegym.EnvelopeRequest{
				Forward:   forward,
				Backward:  backward,
				BandStart: bandStart,
				BandEnd:   bandEnd,
			}
			if action != "" {
				parsed, err := parseAction(action)
				if err != nil {
					return err
				}
				req.Action = &parsed
			}
			summary, err := safegym.Envelope(req)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Field", "Value")
			table.Append("Band", fmt.Sprintf("[%s, %s]", formatFloat(summary.Band.Start), formatFloat(summary.Band.End)))
			table.Append("Forward proximity", formatFloat(summary.Envelope.Forward))
			table.Append("Backward proximity", formatFloat(summary.Envelope.Backward))
			table.Append("Min action", formatAction(summary.Envelope.Min))
			table.Append("Max action", formatAction(summary.Envelope.Max))
			table.Append("Restricted", strconv.FormatBool(summary.Restricted))
			table.Append("Inverted", strconv.FormatBool(summary.Inverted))
			if summary.Scaled != nil {
				table.Append("Action", formatAction(*req.Action))
				table.Append("Scaled action", formatAction(*summary.Scaled))
			}
			table.Render()
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Float64Var(&forward, "forward", 0, "forward hazard proximity (max of lidar bins 0 and 15)")
	flags.Float64Var(&backward, "backward", 0, "backward hazard proximity (max of lidar bins 7 and 8)")
	flags.Float64Var(&bandStart, "band-start", 0, "proximity where limiting starts (0 keeps the default)")
	flags.Float64Var(&bandEnd, "band-end", 0, "proximity where limiting saturates (0 keeps the default)")
	flags.StringVar(&action, "action", "", "action to rescale as forward,turn")
	return cmd
}

func newExportCmd(g *globalFlags) *cobra.Command {
	var (
		dir    string
		latest bool
	)
	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Write run artifacts (JSON, CSV, envelope plot)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := g.client(cmd, cfg, dir)
			if err != nil {
				return err
			}
			defer client.Close()

			req := safegym.ExportRequest{Latest: latest, OutDir: dir}
			if len(args) == 1 {
				req.RunID = args[0]
			}
			exported, err := client.Export(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", defaultExportsDir, "output directory")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run")
	return cmd
}

func printRunSummary(out io.Writer, summary safegym.RunSummary) {
	s := summary.Summary
	fmt.Fprintf(out, "run completed run_id=%s env=%s policy=%s masked=%t\n",
		summary.RunID, summary.Env, summary.Policy, summary.Masked)
	fmt.Fprintf(out, "episodes=%d steps=%d mean_return=%s std_return=%s cost_rate=%s intervention_rate=%s inversion_rate=%s goal_rate=%s\n",
		s.Episodes, s.Steps, formatFloat(s.MeanReturn), formatFloat(s.StdReturn), formatFloat(s.CostRate),
		formatFloat(s.InterventionRate), formatFloat(s.InversionRate), formatFloat(s.GoalRate))
	if summary.ArtifactsDir != "" {
		fmt.Fprintf(out, "artifacts=%s\n", summary.ArtifactsDir)
	}
}

func printEpisodes(out io.Writer, episodes []model.EpisodeSummary) {
	table := tablewriter.NewWriter(out)
	table.Header("Episode", "Steps", "Return", "Cost", "Interventions", "Inversions", "Goal")
	for _, ep := range episodes {
		table.Append(strconv.Itoa(ep.Episode), strconv.Itoa(ep.Steps), formatFloat(ep.Return),
			formatFloat(ep.Cost), strconv.Itoa(ep.Interventions), strconv.Itoa(ep.Inversions),
			strconv.FormatBool(ep.ReachedGoal))
	}
	table.Render()
}

func parseAction(s string) (model.Action, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return model.Action{}, fmt.Errorf("action must be forward,turn: %q", s)
	}
	var action model.Action
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return model.Action{}, fmt.Errorf("parse action component %d: %w", i, err)
		}
		action[i] = v
	}
	return action, nil
}

func formatAction(a model.Action) string {
	return fmt.Sprintf("[%s, %s]", formatFloat(a[0]), formatFloat(a[1]))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
