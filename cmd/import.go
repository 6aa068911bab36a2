package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Parses the dataset into storage",
	Args:  cobra.NoArgs,
	RunE:  importDataset,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func importDataset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := newRepository(cfg, false)
	if err != nil {
		return err
	}

	_, err = repo.Reload(context.Background())
	if err != nil {
		return err
	}

	m := repo.Metadata()
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d routes, %d stops (hash %s)\n", m.Source, m.RouteCount, m.StopCount, m.Hash)

	return nil
}
