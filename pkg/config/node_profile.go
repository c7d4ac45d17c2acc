package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeProfile is the YAML-side configuration: everything richer than a
// single environment variable.
type NodeProfile struct {
	Name    string        `yaml:"name" json:"name"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Scanner ScannerConfig `yaml:"scanner" json:"scanner"`
	Webhook []WebhookRule `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
	Archive ArchiveConfig `yaml:"archive" json:"archive"`
	// PolicyDir holds *.yaml policy documents loaded at startup.
	PolicyDir string `yaml:"policy_dir,omitempty" json:"policy_dir,omitempty"`
}

// StorageConfig selects and parameterizes the ledger backend.
type StorageConfig struct {
	Backend     string `yaml:"backend" json:"backend"` // "memory" | "jsonl" | "sqlite" | "postgres"
	Path        string `yaml:"path,omitempty" json:"path,omitempty"`
	DatabaseURL string `yaml:"database_url,omitempty" json:"database_url,omitempty"`
}

// ScannerConfig tunes the platform scanner.
type ScannerConfig struct {
	IntervalSeconds   int              `yaml:"interval_seconds,omitempty" json:"interval_seconds,omitempty"`
	RequestsPerSecond float64          `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty"`
	Connectors        []ConnectorRoute `yaml:"connectors,omitempty" json:"connectors,omitempty"`
}

// ConnectorRoute maps a URL pattern to a named connector.
type ConnectorRoute struct {
	Pattern  string `yaml:"pattern" json:"pattern"`
	Platform string `yaml:"platform" json:"platform"`
}

// WebhookRule forwards matching events to an external endpoint.
type WebhookRule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	URL     string `yaml:"url" json:"url"`
}

// ArchiveConfig selects bundle archive storage.
type ArchiveConfig struct {
	Kind   string `yaml:"kind,omitempty" json:"kind,omitempty"` // "fs" | "s3" | "gcs"
	Root   string `yaml:"root,omitempty" json:"root,omitempty"`
	Bucket string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
}

var validBackends = map[string]bool{
	"": true, "memory": true, "jsonl": true, "sqlite": true, "postgres": true,
}

// LoadNodeProfile reads and validates a node profile YAML file.
func LoadNodeProfile(path string) (*NodeProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load node profile: %w", err)
	}

	var profile NodeProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse node profile: %w", err)
	}
	if !validBackends[profile.Storage.Backend] {
		return nil, fmt.Errorf("node profile: unknown storage backend %q", profile.Storage.Backend)
	}
	return &profile, nil
}
