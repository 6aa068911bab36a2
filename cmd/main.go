package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/timetable"
	"tidbyt.dev/timetable/config"
	"tidbyt.dev/timetable/downloader"
	"tidbyt.dev/timetable/storage"
)

var rootCmd = &cobra.Command{
	Use:          "timetable",
	Short:        "Bus timetable simulator",
	Long:         "Simulates a day of service on round-trip bus routes",
	SilenceUsage: true,
}

var (
	configPath  string
	dataset     string
	backend     string
	sqliteDir   string
	postgresURL string
	headers     []string
)

const downloadCacheTTL = time.Hour

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&dataset, "dataset", "", "", "Route stops CSV (path or URL)")
	rootCmd.PersistentFlags().StringVarP(&backend, "storage", "", "", "Storage backend (memory, sqlite or postgres)")
	rootCmd.PersistentFlags().StringVarP(&sqliteDir, "sqlite-dir", "", "", "Directory for on-disk sqlite storage")
	rootCmd.PersistentFlags().StringVarP(&postgresURL, "postgres-url", "", "", "Postgres connection string")
	rootCmd.PersistentFlags().StringSliceVarP(
		&headers,
		"header",
		"",
		[]string{},
		"HTTP header sent when downloading the dataset",
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

// Loads config, with command line flags taking precedence.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if dataset != "" {
		cfg.Dataset.Source = dataset
	}
	if backend != "" {
		cfg.Storage.Backend = backend
	}
	if sqliteDir != "" {
		cfg.Storage.SQLiteDir = sqliteDir
	}
	if postgresURL != "" {
		cfg.Storage.PostgresURL = postgresURL
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	if cfg.Dataset.Source == "" {
		return nil, fmt.Errorf("dataset is required")
	}

	return cfg, nil
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		if cfg.Storage.SQLiteDir == "" {
			return storage.NewSQLiteStorage()
		}
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    true,
			Directory: cfg.Storage.SQLiteDir,
		})
	case "postgres":
		return storage.NewPSQLStorage(cfg.Storage.PostgresURL, false)
	}
	return storage.NewMemoryStorage(), nil
}

// Builds a repository for cfg. Downloads are cached on disk when
// useFileCache is set, so repeated invocations don't refetch.
func newRepository(cfg *config.Config, useFileCache bool) (*timetable.Repository, error) {
	s, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	h, err := parseHeaders(headers)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	repo := timetable.NewRepository(s, cfg.Dataset.Source)
	repo.Headers = h
	repo.Timeout = cfg.DatasetTimeout()
	repo.MaxSize = cfg.DatasetMaxSize()

	if useFileCache {
		fs, err := downloader.NewFilesystem("./timetable-cache.json")
		if err != nil {
			return nil, fmt.Errorf("creating download cache: %w", err)
		}
		repo.Downloader = fs
		repo.CacheTTL = downloadCacheTTL
	}

	return repo, nil
}
