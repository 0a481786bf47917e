package config

import (
	"fmt"
	"strings"
)

// DiscoveryConfig bounds which remote files become transfer candidates
type DiscoveryConfig struct {
	MinFileSize int64    `json:"min_file_size,omitempty" yaml:"min_file_size,omitempty" toml:"min_file_size,omitempty"` // Smallest candidate in bytes
	MaxFileSize int64    `json:"max_file_size,omitempty" yaml:"max_file_size,omitempty" toml:"max_file_size,omitempty"` // Largest candidate in bytes
	Extensions  []string `json:"extensions,omitempty" yaml:"extensions,omitempty" toml:"extensions,omitempty"`          // Allow-list, lowercase with leading dot
}

// TransferConfig governs the retrieval and dispatch phases
type TransferConfig struct {
	WorkDir                 string `json:"work_dir" yaml:"work_dir" toml:"work_dir"`                                                                            // Local directory holding in-flight files
	MaxAttempts             int    `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" toml:"max_attempts,omitempty"`                                 // Download attempts within one run
	AttemptCap              int    `json:"attempt_cap,omitempty" yaml:"attempt_cap,omitempty" toml:"attempt_cap,omitempty"`                                    // Lifetime attempts across runs before permanent skip
	BackoffInitialSeconds   int    `json:"backoff_initial_seconds,omitempty" yaml:"backoff_initial_seconds,omitempty" toml:"backoff_initial_seconds,omitempty"` // First inter-attempt sleep
	BackoffMaxSeconds       int    `json:"backoff_max_seconds,omitempty" yaml:"backoff_max_seconds,omitempty" toml:"backoff_max_seconds,omitempty"`            // Sleep ceiling
	StallTimeoutSeconds     int    `json:"stall_timeout_seconds,omitempty" yaml:"stall_timeout_seconds,omitempty" toml:"stall_timeout_seconds,omitempty"`      // Zero-progress window before an in-flight transfer is cut
	ProgressIntervalSeconds int    `json:"progress_interval_seconds,omitempty" yaml:"progress_interval_seconds,omitempty" toml:"progress_interval_seconds,omitempty"` // Byte-progress sampling interval
	MaxRuntimeSeconds       int    `json:"max_runtime_seconds,omitempty" yaml:"max_runtime_seconds,omitempty" toml:"max_runtime_seconds,omitempty"`            // Wall-clock budget for a pass (0 means unlimited)
	SafetyMarginBytes       int64  `json:"safety_margin_bytes,omitempty" yaml:"safety_margin_bytes,omitempty" toml:"safety_margin_bytes,omitempty"`            // Free space kept in reserve
	Resume                  bool   `json:"resume" yaml:"resume" toml:"resume"`                                                                                  // Continue partial downloads when the source supports it
}

// Validate validates discovery bounds
func (dc *DiscoveryConfig) Validate() error {
	if dc.MinFileSize < 0 {
		return fmt.Errorf("min_file_size cannot be negative")
	}
	if dc.MaxFileSize < 0 {
		return fmt.Errorf("max_file_size cannot be negative")
	}
	if dc.MaxFileSize > 0 && dc.MinFileSize > dc.MaxFileSize {
		return fmt.Errorf("min_file_size exceeds max_file_size")
	}
	for _, ext := range dc.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	return nil
}

// ApplyDefaults sets the size window and extension allow-list of the
// original deployment when unset, and normalizes extensions.
func (dc *DiscoveryConfig) ApplyDefaults() {
	if dc.MinFileSize == 0 {
		dc.MinFileSize = 1 * 1024 * 1024 * 1024
	}
	if dc.MaxFileSize == 0 {
		dc.MaxFileSize = 100 * 1024 * 1024 * 1024
	}
	if len(dc.Extensions) == 0 {
		dc.Extensions = []string{".mkv", ".iso", ".mp4", ".m4v", ".avi", ".m2ts"}
	}
	for i, ext := range dc.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		dc.Extensions[i] = ext
	}
}

// Validate validates transfer configuration
func (tc *TransferConfig) Validate() error {
	if tc.WorkDir == "" {
		return fmt.Errorf("work_dir is required")
	}
	if tc.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if tc.AttemptCap <= 0 {
		return fmt.Errorf("attempt_cap must be positive")
	}
	if tc.BackoffInitialSeconds <= 0 {
		return fmt.Errorf("backoff_initial_seconds must be positive")
	}
	if tc.BackoffMaxSeconds < tc.BackoffInitialSeconds {
		return fmt.Errorf("backoff_max_seconds must not be below backoff_initial_seconds")
	}
	if tc.StallTimeoutSeconds <= 0 {
		return fmt.Errorf("stall_timeout_seconds must be positive")
	}
	if tc.ProgressIntervalSeconds <= 0 {
		return fmt.Errorf("progress_interval_seconds must be positive")
	}
	if tc.MaxRuntimeSeconds < 0 {
		return fmt.Errorf("max_runtime_seconds cannot be negative")
	}
	if tc.SafetyMarginBytes < 0 {
		return fmt.Errorf("safety_margin_bytes cannot be negative")
	}
	return nil
}

// ApplyDefaults sets default values for transfer configuration
func (tc *TransferConfig) ApplyDefaults() {
	if tc.WorkDir == "" {
		tc.WorkDir = "./downloads"
	}
	if tc.MaxAttempts <= 0 {
		tc.MaxAttempts = 5
	}
	if tc.AttemptCap <= 0 {
		tc.AttemptCap = 3
	}
	if tc.BackoffInitialSeconds <= 0 {
		tc.BackoffInitialSeconds = 30
	}
	if tc.BackoffMaxSeconds <= 0 {
		tc.BackoffMaxSeconds = 600
	}
	if tc.StallTimeoutSeconds <= 0 {
		tc.StallTimeoutSeconds = 300
	}
	if tc.ProgressIntervalSeconds <= 0 {
		tc.ProgressIntervalSeconds = 5
	}
	if tc.SafetyMarginBytes <= 0 {
		tc.SafetyMarginBytes = 1 * 1024 * 1024 * 1024
	}
	// MaxRuntimeSeconds 0 means the pass runs until discovery is exhausted
}
