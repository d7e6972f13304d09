package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/lysyi3m/ae-comb/app/period"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Acquisition
	StartMonth     string `long:"start" env:"START_MONTH" default:"April 2018" description:"First month to acquire (e.g. \"April 2018\")"`
	EndMonth       string `long:"end" env:"END_MONTH" description:"Last month to acquire; defaults to the current month"`
	SourceFile     string `long:"source" env:"SOURCE_FILE" description:"YAML source definition overriding the built-in NHS England one"`
	OutputFile     string `long:"output" env:"OUTPUT_FILE" description:"Also write the clean dataset to this CSV file"`
	RequestTimeout int    `long:"request-timeout" env:"REQUEST_TIMEOUT" description:"Per request timeout in seconds; overrides the source definition"`

	// Database configuration
	DBDriver   string `long:"db-driver" env:"DB_DRIVER" default:"postgres" choice:"postgres" choice:"sqlite" description:"Database driver"`
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"ae_user" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" description:"Database password (required for postgres)"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"ae_comb" description:"Database name"`
	DBSSLMode  string `long:"db-sslmode" env:"DB_SSLMODE" default:"disable" description:"PostgreSQL sslmode"`
	SQLitePath string `long:"sqlite-path" env:"SQLITE_PATH" default:"./ae-comb.db" description:"SQLite database file"`
	TableName  string `long:"table" env:"TABLE_NAME" default:"nhs_ae_attendances" description:"Destination table, replaced on every run"`
	NoDB       bool   `long:"no-db" env:"NO_DB" description:"Skip loading into the database"`

	// Release cache
	RedisAddr string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for caching downloaded releases (optional)"`
	CacheTTL  int    `long:"cache-ttl" env:"CACHE_TTL" default:"720" description:"Release cache TTL in hours"`

	// Serve mode
	Serve             bool   `long:"serve" env:"SERVE" description:"Run the HTTP API and background scheduler instead of a single acquisition"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"3600" description:"Release feed polling interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"AE Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/London)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads an optional .env file, then flags and environment variables.
func Load() (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	return LoadArgs(os.Args[1:])
}

// LoadArgs parses the given command line. It returns nil, nil when help was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		StartMonth:        raw.StartMonth,
		EndMonth:          raw.EndMonth,
		SourceFile:        raw.SourceFile,
		OutputFile:        raw.OutputFile,
		RequestTimeout:    time.Duration(raw.RequestTimeout) * time.Second,
		DBDriver:          raw.DBDriver,
		DBHost:            raw.DBHost,
		DBPort:            raw.DBPort,
		DBUser:            raw.DBUser,
		DBPassword:        raw.DBPassword,
		DBName:            raw.DBName,
		DBSSLMode:         raw.DBSSLMode,
		SQLitePath:        raw.SQLitePath,
		TableName:         raw.TableName,
		NoDB:              raw.NoDB,
		RedisAddr:         raw.RedisAddr,
		CacheTTL:          time.Duration(raw.CacheTTL) * time.Hour,
		Serve:             raw.Serve,
		Port:              raw.Port,
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	if c.DBDriver == "postgres" && !c.NoDB && c.DBPassword == "" {
		return fmt.Errorf("db-password is required for the postgres driver")
	}

	if c.TableName == "" {
		return fmt.Errorf("table name is required")
	}

	// a bad month must fail before anything touches the network
	if _, err := period.NewRange(c.StartMonth, c.EndMonth, time.Now()); err != nil {
		return fmt.Errorf("invalid month range: %w", err)
	}

	nonNegativeFields := map[string]int{
		"request timeout":    int(c.RequestTimeout),
		"scheduler interval": c.SchedulerInterval,
		"cache ttl":          int(c.CacheTTL),
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if c.Serve {
		if c.WorkerCount < 1 {
			return fmt.Errorf("worker count must be at least 1")
		}
		if c.SchedulerInterval == 0 {
			return fmt.Errorf("scheduler interval must be positive in serve mode")
		}
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
		slog.Debug("Timezone configured", "timezone", timezone)
	}
	return nil
}
