package main

import (
	"context"
	"strings"

	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"tidbyt.dev/timetable"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Lists routes in the dataset",
	Args:  cobra.NoArgs,
	RunE:  routes,
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

func routes(cmd *cobra.Command, args []string) error {
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

	tbl := table.New("Route", "Name", "Directions").WithWriter(cmd.OutOrStdout())
	for _, route := range timetable.Routes(stops) {
		names := []string{}
		for _, d := range route.Directions {
			names = append(names, d.Name)
		}
		tbl.AddRow(route.ID, route.Display, strings.Join(names, " / "))
	}
	tbl.Print()

	return nil
}
