package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tidbyt.dev/timetable"
)

type DatasetConfig struct {
	// Path to a route stops CSV, or an http(s) URL.
	Source     string `yaml:"source"`
	TimeoutSec int    `yaml:"timeout_sec" validate:"gte=0"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=memory sqlite postgres"`
	SQLiteDir   string `yaml:"sqlite_dir"`
	PostgresURL string `yaml:"postgres_url" validate:"required_if=Backend postgres"`
}

type ScheduleConfig struct {
	RestMinutes int    `yaml:"rest_minutes" validate:"gte=0"`
	DayStart    string `yaml:"day_start" validate:"datetime=15:04"`
	DayEnd      string `yaml:"day_end" validate:"datetime=15:04"`

	// IANA name. Empty means the local zone.
	Timezone string `yaml:"timezone"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`

	// Serve metrics on a separate listener. Empty serves them on
	// the API listener.
	MetricsAddr    string `yaml:"metrics_addr"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

type NATSConfig struct {
	// Empty disables publishing.
	URL           string `yaml:"url" validate:"omitempty,url"`
	SubjectPrefix string `yaml:"subject_prefix" validate:"required_with=URL"`
	LogSubjects   bool   `yaml:"log_subjects"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

type CacheConfig struct {
	// Number of computed timetables kept. 0 disables the cache.
	Size   int `yaml:"size" validate:"gte=0"`
	TTLSec int `yaml:"ttl_sec" validate:"gte=0"`
}

type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Storage  StorageConfig  `yaml:"storage"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Server   ServerConfig   `yaml:"server"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
}

func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			TimeoutSec: int(timetable.DefaultDatasetTimeout / time.Second),
			MaxSizeMB:  timetable.DefaultDatasetMaxSize >> 20,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Schedule: ScheduleConfig{
			RestMinutes: timetable.DefaultRestMinutes,
			DayStart:    "05:00",
			DayEnd:      "23:59",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MetricsEnabled: true,
		},
		NATS: NATSConfig{
			SubjectPrefix: "timetable",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Size:   512,
			TTLSec: 300,
		},
	}
}

// Loads configuration.
//
// Defaults are overlaid with the YAML file at path (if path is
// non-empty), then with environment variables. A .env file in the
// working directory is loaded into the environment first, if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		err = cfg.decode(data)
		if err != nil {
			return nil, err
		}
	}

	err := cfg.applyEnv()
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(c)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Dataset.Source, "TIMETABLE_DATASET")
	setString(&c.Storage.Backend, "TIMETABLE_STORAGE")
	setString(&c.Storage.SQLiteDir, "TIMETABLE_SQLITE_DIR")
	c.Storage.PostgresURL = firstNonEmpty(
		os.Getenv("TIMETABLE_POSTGRES_URL"),
		os.Getenv("DATABASE_URL"),
		c.Storage.PostgresURL,
	)
	setString(&c.Schedule.DayStart, "TIMETABLE_DAY_START")
	setString(&c.Schedule.DayEnd, "TIMETABLE_DAY_END")
	setString(&c.Schedule.Timezone, "TIMETABLE_TIMEZONE")
	setString(&c.Server.Addr, "HTTP_ADDR")
	setString(&c.Server.MetricsAddr, "METRICS_ADDR")
	setString(&c.NATS.URL, "NATS_URL")
	setString(&c.NATS.SubjectPrefix, "NATS_SUBJECT_PREFIX")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	for _, e := range []struct {
		key string
		dst *int
	}{
		{"TIMETABLE_REST_MINUTES", &c.Schedule.RestMinutes},
		{"TIMETABLE_DATASET_TIMEOUT_SEC", &c.Dataset.TimeoutSec},
		{"CACHE_SIZE", &c.Cache.Size},
		{"CACHE_TTL_SEC", &c.Cache.TTLSec},
	} {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s: %q", e.key, v)
			}
			*e.dst = n
		}
	}

	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		c.NATS.LogSubjects = parseBool(v)
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		c.Server.MetricsEnabled = parseBool(v)
	}

	return nil
}

func (c *Config) Validate() error {
	v := validator.New()
	err := v.Struct(c)
	if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	_, err = c.Window()
	if err != nil {
		return err
	}
	_, err = c.Location()
	if err != nil {
		return err
	}

	return nil
}

// Operating window of the simulated day.
func (c *Config) Window() (timetable.DayWindow, error) {
	start, err := parseClock(c.Schedule.DayStart)
	if err != nil {
		return timetable.DayWindow{}, fmt.Errorf("day_start: %w", err)
	}
	end, err := parseClock(c.Schedule.DayEnd)
	if err != nil {
		return timetable.DayWindow{}, fmt.Errorf("day_end: %w", err)
	}
	w := timetable.DayWindow{Start: start, End: end}
	return w, w.Validate()
}

func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) DatasetTimeout() time.Duration {
	return time.Duration(c.Dataset.TimeoutSec) * time.Second
}

func (c *Config) DatasetMaxSize() int {
	return c.Dataset.MaxSizeMB << 20
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSec) * time.Second
}

// Parses "HH:MM" into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}
