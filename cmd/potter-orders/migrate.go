package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the store schema",
	}

	var upSteps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configFile, func(ctx context.Context, a *app) error {
				if upSteps <= 0 {
					if err := a.migrate(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied successfully")
					return nil
				}

				runner, err := a.migrationRunner()
				if err != nil {
					return err
				}
				results, err := runner.UpBy(ctx, upSteps)
				for _, r := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %05d %s (%s)\n", r.Version, r.Name, r.Duration)
				}
				return err
			})
		},
	}
	up.Flags().IntVar(&upSteps, "steps", 0, "Apply at most N migrations (0 = all)")

	var downSteps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configFile, func(ctx context.Context, a *app) error {
				runner, err := a.migrationRunner()
				if err != nil {
					return err
				}
				results, err := runner.Down(ctx, downSteps)
				for _, r := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "rolled back %05d %s\n", r.Version, r.Name)
				}
				return err
			})
		},
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "Number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configFile, func(ctx context.Context, a *app) error {
				runner, err := a.migrationRunner()
				if err != nil {
					return err
				}
				statuses, err := runner.Status(ctx)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					line := fmt.Sprintf("%-8s %05d %s", s.Status, s.Version, s.Name)
					if s.AppliedAt != nil {
						line += " (applied at " + s.AppliedAt.Format("2006-01-02 15:04:05") + ")"
					}
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func withApp(ctx context.Context, configFile string, fn func(ctx context.Context, a *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := bootstrap(ctx, configFile)
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	return fn(ctx, a)
}
