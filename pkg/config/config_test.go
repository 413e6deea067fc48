package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		databaseDSNEnv, tableEnv, snapshotDSNEnv, logLevelEnv, countriesEnv,
		categoriesEnv, cohortMetricEnv, scheduleEnv, timezoneEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()

	if cfg.Database.Table != defaultTable {
		t.Fatalf("unexpected table default: %q", cfg.Database.Table)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("unexpected log level default: %q", cfg.Logging.Level)
	}
	if cfg.Cohort.Metric != "retention" {
		t.Fatalf("unexpected cohort metric default: %q", cfg.Cohort.Metric)
	}
	if cfg.Schedule.Location == nil || cfg.Schedule.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Schedule.Location)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := `
database:
  dsn: mysql://retail:pwd@db:3306/retail
  table: invoices
filter:
  start_month: "012011"
  end_month: "062011"
  countries: [France, Germany]
cohort:
  metric: revenue
schedule:
  cron: "0 6 * * *"
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(tableEnv, "online_retail_2011")
	t.Setenv(categoriesEnv, "Home, Kitchen,,")

	cfg := Load()

	if cfg.Database.DSN != "mysql://retail:pwd@db:3306/retail" {
		t.Fatalf("unexpected dsn: %q", cfg.Database.DSN)
	}
	if cfg.Database.Table != "online_retail_2011" {
		t.Fatalf("env should override table, got %q", cfg.Database.Table)
	}
	if cfg.Filter.StartMonth != "012011" || cfg.Filter.EndMonth != "062011" {
		t.Fatalf("unexpected months: %+v", cfg.Filter)
	}
	if !reflect.DeepEqual(cfg.Filter.Countries, []string{"France", "Germany"}) {
		t.Fatalf("unexpected countries: %v", cfg.Filter.Countries)
	}
	if !reflect.DeepEqual(cfg.Filter.Categories, []string{"Home", "Kitchen"}) {
		t.Fatalf("unexpected categories: %v", cfg.Filter.Categories)
	}
	if cfg.Cohort.Metric != "revenue" || cfg.Schedule.Cron != "0 6 * * *" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadInvalidYAMLFallsBack(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("database: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(configPathEnv, path)

	cfg := Load()
	if cfg.Database.DSN != "" || cfg.Database.Table != defaultTable {
		t.Fatalf("expected defaults after parse error, got %+v", cfg.Database)
	}
}

func TestLoadUnknownTimezone(t *testing.T) {
	clearEnv(t)
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv(timezoneEnv, "Mars/Olympus_Mons")

	cfg := Load()
	if cfg.Schedule.Timezone != "UTC" || cfg.Schedule.Location.String() != "UTC" {
		t.Fatalf("expected UTC fallback, got %q", cfg.Schedule.Timezone)
	}
}
