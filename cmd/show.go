package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"tidbyt.dev/timetable"
	"tidbyt.dev/timetable/model"
)

var showCmd = &cobra.Command{
	Use:   "show <route_id> <station>",
	Short: "Simulates the timetable of a route, anchored at a station",
	Args:  cobra.ExactArgs(2),
	RunE:  show,
}

var (
	showAt        string
	showRest      int
	showDirection int
)

func init() {
	showCmd.Flags().StringVarP(&showAt, "at", "a", "", "Time at the station, HH:MM (default now)")
	showCmd.Flags().IntVarP(&showRest, "rest", "r", -1, "Rest minutes between laps (default from config)")
	showCmd.Flags().IntVarP(&showDirection, "direction", "d", 0, "Direction the station is picked from (1 or 2)")
	rootCmd.AddCommand(showCmd)
}

func show(cmd *cobra.Command, args []string) error {
	direction := model.Direction(showDirection)
	if showDirection != 0 && (int(direction) != showDirection || !direction.Valid()) {
		return fmt.Errorf("direction must be 1 or 2")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	window, err := cfg.Window()
	if err != nil {
		return err
	}

	at := time.Now().In(loc)
	if showAt != "" {
		t, err := time.Parse(timetable.ClockFormat, showAt)
		if err != nil {
			return fmt.Errorf("invalid --at '%s', expected HH:MM", showAt)
		}
		at = time.Date(at.Year(), at.Month(), at.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	}

	rest := cfg.Schedule.RestMinutes
	if showRest >= 0 {
		rest = showRest
	}

	repo, err := newRepository(cfg, true)
	if err != nil {
		return err
	}

	stops, err := repo.Load(context.Background())
	if err != nil {
		return err
	}

	tt, err := timetable.Simulate(stops, timetable.Query{
		RouteID:     args[0],
		Station:     args[1],
		At:          at,
		Direction:   direction,
		RestMinutes: &rest,
		Window:      window,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s (%s): at %s %s, one departure every %s\n\n",
		tt.RouteDisplay,
		tt.RouteID,
		tt.Station,
		tt.At.Format(timetable.ClockFormat),
		tt.Departures.Headway,
	)
	printTable(w, tt.OutboundName, tt.Outbound)
	fmt.Fprintln(w)
	printTable(w, tt.ReturnName, tt.Return)

	return nil
}

func printTable(w io.Writer, name string, t *timetable.Table) {
	fmt.Fprintln(w, name)

	header := []interface{}{"Station"}
	for _, c := range t.Columns {
		header = append(header, c)
	}

	tbl := table.New(header...).WithWriter(w)
	for _, row := range t.Rows {
		cells := []interface{}{row.Station}
		for _, c := range row.Cells {
			cells = append(cells, c)
		}
		tbl.AddRow(cells...)
	}
	tbl.Print()
}
