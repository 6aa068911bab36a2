package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/timetable/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders([]string{"Authorization: Bearer x", "X-Key:abc:def"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer x",
		"X-Key":         "abc:def",
	}, h)

	_, err = parseHeaders([]string{"nope"})
	assert.Error(t, err)
}

func TestRoutesCommand(t *testing.T) {
	path := testutil.WriteDataset(t, testutil.SimpleRoute())

	out, err := run(t, "routes", "--dataset", path, "--storage", "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "r1")
	assert.Contains(t, out, "Route One")
	assert.Contains(t, out, "Eastbound / Westbound")
}

func TestStationsCommand(t *testing.T) {
	path := testutil.WriteDataset(t, testutil.SimpleRoute())

	out, err := run(t, "stations", "r1", "-d", "2", "--dataset", path, "--storage", "memory")
	require.NoError(t, err)
	assert.Equal(t, "B\nC\n", out)

	_, err = run(t, "stations", "r1", "-d", "3", "--dataset", path, "--storage", "memory")
	assert.Error(t, err)
	stationsDirection = 0
}

func TestShowCommand(t *testing.T) {
	path := testutil.WriteDataset(t, testutil.SimpleRoute())

	out, err := run(t, "show", "r1", "B", "--at", "08:10", "--rest", "10", "--dataset", path, "--storage", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "Route One (r1): at B 08:10, one departure every 22m0s")
	assert.Contains(t, out, "Eastbound")
	assert.Contains(t, out, "Westbound")
	assert.Contains(t, out, "08:05")
	assert.Contains(t, out, "08:17")

	_, err = run(t, "show", "r1", "nope", "--at", "08:10", "--dataset", path, "--storage", "memory")
	assert.Error(t, err)

	_, err = run(t, "show", "r1", "B", "--at", "8h", "--dataset", path, "--storage", "memory")
	assert.Error(t, err)
}

func TestImportCommand(t *testing.T) {
	path := testutil.WriteDataset(t, testutil.SimpleRoute())

	out, err := run(t, "import", "--dataset", path, "--storage", "sqlite", "--sqlite-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "1 routes, 4 stops")
}
