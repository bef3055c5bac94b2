// Package config loads the INI configuration file described in
// spec.md §6: sections [usecloud], [cloud], [local], each of the
// latter two holding host/port/dbname/user/password, plus this
// repository's own [broker], [symbols], [sinks], and [logging]
// sections that carry the rest of the domain and ambient stack's
// connection settings.
//
// Grounded in the teacher's pkg/config/config.go for the
// struct-of-structs-with-tags shape, but built on gopkg.in/ini.v1
// against a real INI file rather than envconfig against the process
// environment, per spec.md §6's explicit file format.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// DatabaseConfig holds one side of the usecloud switch: either [cloud]
// or [local], whichever is active. This is the DSN source for the
// primary MySQL store.
type DatabaseConfig struct {
	Host     string `ini:"host"`
	Port     int    `ini:"port"`
	DBName   string `ini:"dbname"`
	User     string `ini:"user"`
	Password string `ini:"password"`
}

// BrokerConfig holds the TCP endpoint for the broker gateway (spec.md
// §6, default 127.0.0.1:7496) and the two fixed client ids the core
// uses (realtime=0, backfill=2).
type BrokerConfig struct {
	Host           string `ini:"host"`
	Port           int    `ini:"port"`
	RealtimeClient int    `ini:"realtime_client_id"`
	BackfillClient int    `ini:"backfill_client_id"`
}

// SymbolsConfig names the single realtime symbol (spec.md §3: "the
// realtime path tracks exactly one symbol") and the ordered backfill
// list (spec.md §5: "between symbols... order is the list iteration
// order").
type SymbolsConfig struct {
	Realtime string   `ini:"realtime"`
	Backfill []string `ini:"backfill" delim:","`
}

// SinksConfig holds the secondary-sink connection settings
// (SPEC_FULL.md §4.12): InfluxDB mirror, Redis latest-bar cache, NATS
// bar fan-out. All three are purely additive; a blank URL disables the
// corresponding sink.
type SinksConfig struct {
	InfluxURL    string `ini:"influx_url"`
	InfluxToken  string `ini:"influx_token"`
	InfluxOrg    string `ini:"influx_org"`
	InfluxBucket string `ini:"influx_bucket"`
	RedisAddr    string `ini:"redis_addr"`
	RedisTTL     string `ini:"redis_ttl"`
	NATSURL      string `ini:"nats_url"`
}

// LoggingConfig holds the CLI-selectable level (spec.md §6) and the
// rotated-file destination under logs/ (SPEC_FULL.md §4.10).
type LoggingConfig struct {
	Level    string
	Dir      string `ini:"dir"`
	MaxSizeM int    `ini:"max_size_mb"`
	MaxAgeD  int    `ini:"max_age_days"`
	MaxFiles int    `ini:"max_backups"`
}

// Config is the fully resolved, validated configuration.
type Config struct {
	UseCloud bool
	Database DatabaseConfig
	Broker   BrokerConfig
	Symbols  SymbolsConfig
	Sinks    SinksConfig
	Logging  LoggingConfig

	ShmRegion string
}

// Load parses and validates the INI file at path. A missing or
// unparseable file, or a missing required key, is a configuration
// fault (spec.md §7): fatal, reported to the caller as an error rather
// than panicking, so main can log and exit non-zero.
func Load(path string) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	cfg := &Config{
		ShmRegion: "RealTimeData",
		Logging:   LoggingConfig{Level: "INFO", Dir: "logs", MaxSizeM: 100, MaxAgeD: 28, MaxFiles: 10},
		Broker:    BrokerConfig{Host: "127.0.0.1", Port: 7496, RealtimeClient: 0, BackfillClient: 2},
	}

	useCloudSec := f.Section("usecloud")
	cfg.UseCloud = useCloudSec.Key("usecloud").MustBool(false)

	dbSectionName := "local"
	if cfg.UseCloud {
		dbSectionName = "cloud"
	}
	if !f.HasSection(dbSectionName) {
		return nil, fmt.Errorf("config: missing required section [%s]", dbSectionName)
	}
	dbSec := f.Section(dbSectionName)
	if err := dbSec.MapTo(&cfg.Database); err != nil {
		return nil, fmt.Errorf("config: parse [%s]: %w", dbSectionName, err)
	}
	if err := requireNonEmpty(dbSectionName, map[string]string{
		"host": cfg.Database.Host, "dbname": cfg.Database.DBName, "user": cfg.Database.User,
	}); err != nil {
		return nil, err
	}

	if f.HasSection("broker") {
		if err := f.Section("broker").MapTo(&cfg.Broker); err != nil {
			return nil, fmt.Errorf("config: parse [broker]: %w", err)
		}
	}

	if !f.HasSection("symbols") {
		return nil, fmt.Errorf("config: missing required section [symbols]")
	}
	symSec := f.Section("symbols")
	cfg.Symbols.Realtime = strings.TrimSpace(symSec.Key("realtime").String())
	cfg.Symbols.Backfill = splitNonEmpty(symSec.Key("backfill").String())
	if cfg.Symbols.Realtime == "" && len(cfg.Symbols.Backfill) == 0 {
		return nil, fmt.Errorf("config: [symbols] must set realtime or backfill")
	}

	if f.HasSection("sinks") {
		if err := f.Section("sinks").MapTo(&cfg.Sinks); err != nil {
			return nil, fmt.Errorf("config: parse [sinks]: %w", err)
		}
	}

	if f.HasSection("logging") {
		if err := f.Section("logging").MapTo(&cfg.Logging); err != nil {
			return nil, fmt.Errorf("config: parse [logging]: %w", err)
		}
	}

	return cfg, nil
}

func requireNonEmpty(section string, keys map[string]string) error {
	for k, v := range keys {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("config: [%s] missing required key %q", section, k)
		}
	}
	return nil
}

func splitNonEmpty(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MySQLDSN returns the driver DSN for the active database section.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.DBName)
}
