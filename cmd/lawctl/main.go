package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lawdesk/internal/app"
	"lawdesk/internal/engine/plans"
	"lawdesk/internal/engine/usage"
	"lawdesk/internal/pkg/logger"
	"lawdesk/internal/platform/config"
	"lawdesk/internal/workers"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "lawctl",
		Short:         "LawDesk administration tool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to config file")

	// open loads config and services for one command.
	open := func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Logging, "lawctl")
		return app.New(ctx, cfg)
	}

	root.AddCommand(
		migrateCmd(open),
		reconcileCmd(open),
		expireTrialsCmd(open),
		usageCmd(open),
		plansCmd(),
	)
	return root
}

type opener func(ctx context.Context) (*app.App, error)

func migrateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending global database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func reconcileCmd(open opener) *cobra.Command {
	var email string
	var remove bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare document blobs with their metadata",
		Long: `Report blobs that have no metadata entry and metadata entries whose blob
is missing. Without --email every user is checked. With --delete the
inconsistencies are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			job := &workers.Reconciler{Users: a.Users, Docs: a.Documents, Remove: remove}
			out := cmd.OutOrStdout()

			if email != "" {
				report, err := job.One(cmd.Context(), email)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "orphan blobs: %d\n", len(report.OrphanBlobs))
				for _, n := range report.OrphanBlobs {
					fmt.Fprintf(out, "  %s\n", n)
				}
				fmt.Fprintf(out, "dangling metadata: %d\n", len(report.DanglingMetadata))
				for _, id := range report.DanglingMetadata {
					fmt.Fprintf(out, "  %s\n", id)
				}
				if len(report.RecentBlobs) > 0 {
					fmt.Fprintf(out, "recent blobs left alone: %d\n", len(report.RecentBlobs))
				}
				if report.Removed {
					fmt.Fprintln(out, "removed")
				}
				return nil
			}

			sum, err := job.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "users: %d (failed %d)\norphan blobs: %d\ndangling metadata: %d\n",
				sum.Users, sum.Failed, sum.OrphanBlobs, sum.DanglingMetadata)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Check a single user")
	cmd.Flags().BoolVar(&remove, "delete", false, "Remove orphaned blobs and dangling metadata")
	return cmd
}

func expireTrialsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "expire-trials",
		Short: "Expire trials whose end date has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			job := &workers.TrialExpiry{Registry: a.Registry, Orgs: a.Orgs, Users: a.Users, Mail: a.Mail}
			expired, err := job.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d trial(s)\n", len(expired))
			for _, code := range expired {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", code)
			}
			return nil
		},
	}
}

func usageCmd(open opener) *cobra.Command {
	var org string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show this month's metered usage for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.Registry.EffectivePlan(cmd.Context(), org)
			if err != nil {
				return err
			}
			summary, err := a.Meter.Summary(cmd.Context(), org)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "organization\t%s\nplan\t%s\n\nFEATURE\tUSED\tLIMIT\n", org, plan)
			for _, f := range usage.Features(summary) {
				limit := "unlimited"
				if l, ok := plans.GetLimit(plan, f); ok && !plans.IsUnlimited(l) {
					limit = fmt.Sprint(l)
				}
				if !plans.HasFeature(plan, f) {
					limit = "not in plan"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", f, summary[f], limit)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "Organization code")
	cmd.MarkFlagRequired("org")
	return cmd
}

func plansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Print the plan catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PLAN\tFEATURE\tLIMIT")
			for _, name := range plans.Names() {
				p, _ := plans.Get(name)
				for _, f := range usage.Features(p.Limits) {
					limit := fmt.Sprint(p.Limits[f])
					if plans.IsUnlimited(p.Limits[f]) {
						limit = "unlimited"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", name, f, limit)
				}
			}
			return tw.Flush()
		},
	}
}
