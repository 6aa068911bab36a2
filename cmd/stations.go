package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tidbyt.dev/timetable"
	"tidbyt.dev/timetable/model"
)

var stationsCmd = &cobra.Command{
	Use:   "stations <route_id>",
	Short: "Lists stations along a route",
	Args:  cobra.ExactArgs(1),
	RunE:  stations,
}

var stationsDirection int

func init() {
	stationsCmd.Flags().IntVarP(&stationsDirection, "direction", "d", 0, "Restrict to a direction (1 outbound, 2 return)")
	rootCmd.AddCommand(stationsCmd)
}

func stations(cmd *cobra.Command, args []string) error {
	direction := model.Direction(stationsDirection)
	if stationsDirection != 0 && (int(direction) != stationsDirection || !direction.Valid()) {
		return fmt.Errorf("direction must be 1 or 2")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := newRepository(cfg, true)
	if err != nil {
		return err
	}

	stops, err := repo.Load(context.Background())
	if err != nil {
		return err
	}

	names, err := timetable.Stations(stops, args[0], direction)
	if err != nil {
		return err
	}

	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}

	return nil
}
