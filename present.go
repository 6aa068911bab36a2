package timetable

import "tidbyt.dev/timetable/model"

type TableRow struct {
	Station string
	Cells   []string
}

// One direction of a grid, ready for display.
type Table struct {
	Direction model.Direction
	Columns   []string
	Rows      []TableRow
}

// Splits a grid into outbound and return tables, with rows labelled
// by plain stop name.
func Present(grid *Grid) (outbound, ret *Table) {
	outbound = newTable(grid, model.DirectionOutbound)
	ret = newTable(grid, model.DirectionReturn)
	return outbound, ret
}

func newTable(grid *Grid, direction model.Direction) *Table {
	t := &Table{
		Direction: direction,
		Columns:   append([]string{}, grid.Columns...),
		Rows:      []TableRow{},
	}
	for _, row := range grid.Rows {
		if row.Direction != direction {
			continue
		}
		t.Rows = append(t.Rows, TableRow{
			Station: row.StopName,
			Cells:   append([]string{}, row.Cells...),
		})
	}
	return t
}
