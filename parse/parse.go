package parse

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"tidbyt.dev/timetable/storage"
)

// Parses a route stops CSV dump into writer. Returns a (partial)
// metadata record holding route and stop counts; source, hash and
// retrieval time are left for the caller.
func ParseDataset(writer storage.DatasetWriter, buf []byte) (*storage.DatasetMetadata, error) {
	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, fmt.Errorf("empty dataset")
	}

	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	err := writer.BeginStops()
	if err != nil {
		return nil, fmt.Errorf("beginning route stops: %w", err)
	}

	routes, stops, err := ParseRouteStops(writer, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("parsing route stops: %w", err)
	}

	err = writer.EndStops()
	if err != nil {
		return nil, fmt.Errorf("ending route stops: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("closing dataset writer: %w", err)
	}

	return &storage.DatasetMetadata{
		RouteCount: routes,
		StopCount:  stops,
	}, nil
}
