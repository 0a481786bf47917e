package config

import (
	"fmt"
	"os"
)

// LedgerConfig holds the configuration for the durable transfer ledger
type LedgerConfig struct {
	Path string `json:"path" yaml:"path" toml:"path"` // Path to the ledger JSON document
}

// Validate validates the ledger configuration
func (lc *LedgerConfig) Validate() error {
	if lc.Path == "" {
		return fmt.Errorf("ledger path is required")
	}
	return nil
}

// ApplyDefaults sets default values for the ledger configuration
func (lc *LedgerConfig) ApplyDefaults() {
	if lc.Path == "" {
		lc.Path = "./upload_state.json"
	}
}

// CatalogConfig holds the configuration for the optional remote catalog.
// An empty path disables the catalog.
type CatalogConfig struct {
	Path   string      `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`          // Path to the bbolt DB file
	Bucket string      `json:"bucket,omitempty" yaml:"bucket,omitempty" toml:"bucket,omitempty"`    // Name of the bucket
	Mode   os.FileMode `json:"mode,omitempty" yaml:"mode,omitempty" toml:"mode,omitempty"`          // File open mode: "0600", "0644"
	NoSync bool        `json:"no_sync,omitempty" yaml:"no_sync,omitempty" toml:"no_sync,omitempty"` // Disable fsync for better performance
}

// Enabled reports whether a catalog path was configured.
func (cc *CatalogConfig) Enabled() bool {
	return cc.Path != ""
}

// Validate validates the catalog configuration
func (cc *CatalogConfig) Validate() error {
	if cc.Path == "" {
		return nil
	}
	if cc.Bucket == "" {
		return fmt.Errorf("catalog bucket is required")
	}
	return nil
}

// ApplyDefaults sets default values if not provided for the catalog
func (cc *CatalogConfig) ApplyDefaults() {
	if cc.Bucket == "" {
		cc.Bucket = "remote_files"
	}
	if cc.Mode == 0 {
		cc.Mode = 0600
	}
	// NoSync remains false by default for data safety
}
