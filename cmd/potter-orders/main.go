// Command potter-orders запускает пример сервиса заказов поверх репозиториев Potter.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load(".env")

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "potter-orders",
		Short:         "Orders service built on the Potter repository pattern",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default ./potter.yaml, env POTTER_*)")

	root.AddCommand(
		newServeCommand(&configFile),
		newMigrateCommand(&configFile),
		newSeedCommand(&configFile),
	)
	return root
}
