package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/akriventsev/potter-repository/examples/orders/infrastructure"
	"github.com/akriventsev/potter-repository/framework/persistence"
)

func newSeedCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo products and orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *configFile, func(ctx context.Context, a *app) error {
				if err := a.migrate(ctx); err != nil {
					return err
				}

				fw, err := a.framework()
				if err != nil {
					return err
				}
				if err := fw.Initialize(ctx); err != nil {
					return err
				}
				defer func() { _ = fw.Shutdown(context.Background()) }()

				pc := persistence.NewContext(a.data, persistence.WithLogger(a.logger))
				orders, err := infrastructure.Seed(ctx, infrastructure.NewOrderRepositoryForContext(pc), time.Now())
				if err != nil {
					return err
				}
				for _, o := range orders {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %.2f\n", o.Key, o.PlacedAt.Format(time.RFC3339), o.Total)
				}
				return nil
			})
		},
	}
}
