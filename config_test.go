package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const validConfig = `
service:
  name: sales-dw-etl
  health_port: "8089"
  poll_interval_seconds: 60
  stage_timeout_seconds: 120
oltp:
  host: oltp.example.com
  port: 5432
  database: sales_oltp
  user: reader
  password: secret
warehouse:
  host: dw.example.com
  port: 3306
  database: sales_dw
  user: writer
  password: secret
etl:
  chunk_size: 500
`

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if config.PollInterval() != 60*time.Second {
		t.Errorf("PollInterval = %v, want 60s", config.PollInterval())
	}
	if config.StageTimeout() != 120*time.Second {
		t.Errorf("StageTimeout = %v, want 120s", config.StageTimeout())
	}
	if config.ETL.ChunkSize != 500 {
		t.Errorf("ChunkSize = %d, want 500", config.ETL.ChunkSize)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	minimal := `
oltp:
  host: oltp.example.com
warehouse:
  host: dw.example.com
`
	config, err := LoadConfig(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate failed with defaults: %v", err)
	}

	if config.ETL.ChunkSize != 1000 {
		t.Errorf("default ChunkSize = %d, want 1000", config.ETL.ChunkSize)
	}
	if config.Service.PollIntervalSeconds != 300 {
		t.Errorf("default poll interval = %d, want 300", config.Service.PollIntervalSeconds)
	}
	if config.OLTP.SSLMode != "disable" {
		t.Errorf("default sslmode = %q, want disable", config.OLTP.SSLMode)
	}
	if config.Service.Name != "sales-dw-etl" {
		t.Errorf("default service name = %q", config.Service.Name)
	}
}

func TestValidate_MissingHosts(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "service:\n  name: x\n"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if err := config.Validate(); err == nil {
		t.Error("expected validation error for missing hosts")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadConfig_BadYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "service: [unclosed")); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestConnectionStrings(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	pg := config.OLTP.ConnectionString()
	wantPG := "host=oltp.example.com port=5432 dbname=sales_oltp user=reader password=secret sslmode=disable"
	if pg != wantPG {
		t.Errorf("postgres connection string = %q, want %q", pg, wantPG)
	}

	dsn := config.Warehouse.DSN()
	wantDSN := "writer:secret@tcp(dw.example.com:3306)/sales_dw?parseTime=true"
	if dsn != wantDSN {
		t.Errorf("mysql DSN = %q, want %q", dsn, wantDSN)
	}
}
