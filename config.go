package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the service configuration
type Config struct {
	Service   ServiceConfig  `yaml:"service"`
	OLTP      PostgresConfig `yaml:"oltp"`
	Warehouse MySQLConfig    `yaml:"warehouse"`
	ETL       ETLConfig      `yaml:"etl"`
}

// ServiceConfig holds service-level settings
type ServiceConfig struct {
	Name                string `yaml:"name"`
	HealthPort          string `yaml:"health_port"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	StageTimeoutSeconds int    `yaml:"stage_timeout_seconds"`
}

// PostgresConfig holds connection settings for the operational store
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// MySQLConfig holds connection settings for the warehouse
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ETLConfig holds pipeline tuning settings
type ETLConfig struct {
	ChunkSize   int    `yaml:"chunk_size"`
	SnapshotDir string `yaml:"snapshot_dir"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "sales-dw-etl"
	}
	if c.Service.HealthPort == "" {
		c.Service.HealthPort = "8089"
	}
	if c.Service.PollIntervalSeconds == 0 {
		c.Service.PollIntervalSeconds = 300
	}
	if c.Service.StageTimeoutSeconds == 0 {
		c.Service.StageTimeoutSeconds = 600
	}
	if c.ETL.ChunkSize == 0 {
		c.ETL.ChunkSize = 1000
	}
	if c.ETL.SnapshotDir == "" {
		c.ETL.SnapshotDir = "."
	}
	if c.OLTP.SSLMode == "" {
		c.OLTP.SSLMode = "disable"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OLTP.Host == "" {
		return fmt.Errorf("oltp.host is required")
	}
	if c.Warehouse.Host == "" {
		return fmt.Errorf("warehouse.host is required")
	}
	if c.Service.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be at least 1")
	}
	if c.Service.StageTimeoutSeconds < 1 {
		return fmt.Errorf("stage_timeout_seconds must be at least 1")
	}
	if c.ETL.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be at least 1")
	}
	return nil
}

// PollInterval returns the poll interval as a Duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Service.PollIntervalSeconds) * time.Second
}

// StageTimeout returns the per-stage timeout as a Duration
func (c *Config) StageTimeout() time.Duration {
	return time.Duration(c.Service.StageTimeoutSeconds) * time.Second
}

// ConnectionString builds a PostgreSQL connection string
func (p *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.User, p.Password, p.SSLMode,
	)
}

// DSN builds a MySQL data source name
func (m *MySQLConfig) DSN() string {
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true",
		m.User, m.Password, m.Host, m.Port, m.Database,
	)
}
