package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath = "config.yaml"
	defaultTable      = "online_retail"
	defaultTimezone   = "UTC"

	configPathEnv   = "RETAIL_SEGMENTS_CONFIG"
	databaseDSNEnv  = "RETAIL_SEGMENTS_DSN"
	tableEnv        = "RETAIL_SEGMENTS_TABLE"
	snapshotDSNEnv  = "SNAPSHOT_DSN"
	logLevelEnv     = "LOG_LEVEL"
	countriesEnv    = "COUNTRIES"
	categoriesEnv   = "CATEGORIES"
	cohortMetricEnv = "COHORT_METRIC"
	scheduleEnv     = "SCHEDULE"
	timezoneEnv     = "TIMEZONE"
)

// Config regroupe les paramètres du fichier YAML et de l'environnement.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Filter   FilterConfig   `yaml:"filter"`
	Cohort   CohortConfig   `yaml:"cohort"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig décrit la source des transactions.
type DatabaseConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// SnapshotConfig active l'enregistrement des rapports ; DSN vide → pas de snapshot.
type SnapshotConfig struct {
	DSN string `yaml:"dsn"`
}

// FilterConfig restreint les transactions chargées.
type FilterConfig struct {
	StartMonth string   `yaml:"start_month"` // MMYYYY
	EndMonth   string   `yaml:"end_month"`   // MMYYYY
	Countries  []string `yaml:"countries"`
	Categories []string `yaml:"categories"`
}

// CohortConfig choisit la métrique de la matrice de cohortes.
type CohortConfig struct {
	Metric string `yaml:"metric"`
}

// ScheduleConfig définit les exécutions récurrentes (cron 5 champs).
type ScheduleConfig struct {
	Cron     string         `yaml:"cron"`
	Timezone string         `yaml:"timezone"`
	Location *time.Location `yaml:"-"`
}

// LoggingConfig fixe le niveau du logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load lit le YAML (s'il existe), applique l'environnement puis les valeurs par défaut.
func Load() Config {
	var cfg Config

	path := defaultConfigPath
	if v := os.Getenv(configPathEnv); v != "" {
		path = v
	}
	if raw, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (ignoring file)", path, err)
			cfg = Config{}
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	envOverride(&c.Database.DSN, databaseDSNEnv)
	envOverride(&c.Database.Table, tableEnv)
	envOverride(&c.Snapshot.DSN, snapshotDSNEnv)
	envOverride(&c.Logging.Level, logLevelEnv)
	envOverride(&c.Cohort.Metric, cohortMetricEnv)
	envOverride(&c.Schedule.Cron, scheduleEnv)
	envOverride(&c.Schedule.Timezone, timezoneEnv)
	envOverrideList(&c.Filter.Countries, countriesEnv)
	envOverrideList(&c.Filter.Categories, categoriesEnv)
}

func (c *Config) applyDefaults() {
	if c.Database.Table == "" {
		c.Database.Table = defaultTable
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Cohort.Metric == "" {
		c.Cohort.Metric = "retention"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = defaultTimezone
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", c.Schedule.Timezone, defaultTimezone)
		c.Schedule.Timezone = defaultTimezone
		loc = time.UTC
	}
	c.Schedule.Location = loc
}

func envOverride(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func envOverrideList(target *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = SplitList(v)
	}
}

// SplitList découpe "a, b,,c" en ["a","b","c"].
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
