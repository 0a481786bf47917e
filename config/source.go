// The source configuration is designed to allow adding other remote backends in the future. To do this, add a new SourceType, update SourceConfig, and define the validation for the new source.
package config

import "fmt"

// SourceType represents the type of remote file server
type SourceType string

const (
	SourceTypeFTP SourceType = "ftp"
)

// SourceConfig holds the configuration for the remote file source
type SourceConfig struct {
	SourceType SourceType `json:"type" yaml:"type" toml:"type"`

	// Common options for all sources
	Common CommonSourceConfig `json:"common,omitempty" yaml:"common,omitempty" toml:"common,omitempty"`

	// type-specific configurations
	FTP *FTPConfig `json:"ftp,omitempty" yaml:"ftp,omitempty" toml:"ftp,omitempty"`
}

// CommonSourceConfig contains general settings applicable to all sources
type CommonSourceConfig struct {
	PoolSize       int `json:"pool_size,omitempty" yaml:"pool_size,omitempty" toml:"pool_size,omitempty"`                // optional: number of pooled connections
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" toml:"timeout_seconds,omitempty"` // optional: per-operation I/O timeout in seconds
	MaxRetries     int `json:"max_retries,omitempty" yaml:"max_retries,omitempty" toml:"max_retries,omitempty"`          // optional: maximum number of retries for listing calls
	MaxRPS         int `json:"max_rps,omitempty" yaml:"max_rps,omitempty" toml:"max_rps,omitempty"`                      // optional: maximum control commands per second (0 means no limit)
}

// FTPConfig holds FTP-specific configuration
type FTPConfig struct {
	Host     string `json:"host" yaml:"host" toml:"host"`                                           // FTP server host
	Port     int    `json:"port" yaml:"port" toml:"port"`                                           // FTP server port (default: 21)
	Username string `json:"username" yaml:"username" toml:"username"`                               // FTP username
	Password string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"` // FTP password
	Root     string `json:"root,omitempty" yaml:"root,omitempty" toml:"root"`                       // Directory the walk starts from
	UseTLS   bool   `json:"use_tls,omitempty" yaml:"use_tls,omitempty" toml:"use_tls,omitempty"`    // Use explicit FTP over TLS
}

// Validate ensures the configuration is valid for the specified source type
func (sc *SourceConfig) Validate() error {
	if err := sc.Common.Validate(); err != nil {
		return err
	}

	switch sc.SourceType {
	case SourceTypeFTP:
		if sc.FTP == nil {
			return fmt.Errorf("ftp configuration is required when type is 'ftp'")
		}
		return sc.FTP.Validate()
	default:
		return fmt.Errorf("unsupported source type: %s", sc.SourceType)
	}
}

// GetActiveConfig returns the active configuration based on the source type
func (sc *SourceConfig) GetActiveConfig() interface{} {
	switch sc.SourceType {
	case SourceTypeFTP:
		return sc.FTP
	default:
		return nil
	}
}

// ApplyDefaults sets default values if they are not provided
func (c *CommonSourceConfig) ApplyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 2
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	// MaxRPS left as configured (0 means no limit)
}

func (c *CommonSourceConfig) Validate() error {
	if c.PoolSize < 0 {
		return fmt.Errorf("pool_size cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds cannot be negative")
	}
	if c.MaxRPS < 0 {
		return fmt.Errorf("max_rps cannot be negative")
	}
	return nil
}

// Validate validates FTP configuration
func (fc *FTPConfig) Validate() error {
	if fc.Host == "" {
		return fmt.Errorf("ftp host is required")
	}
	if fc.Port <= 0 || fc.Port > 65535 {
		return fmt.Errorf("ftp port must be between 1 and 65535")
	}
	if fc.Username == "" {
		return fmt.Errorf("ftp username is required")
	}
	// Password can be empty for anonymous FTP
	return nil
}

// ApplyDefaults sets default values for FTP configuration
func (fc *FTPConfig) ApplyDefaults() {
	if fc.Port == 0 {
		fc.Port = 21 // Default FTP port
	}
	if fc.Root == "" {
		fc.Root = "/" // Walk from the server root
	}
}
