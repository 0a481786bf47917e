package config

import "fmt"

// UploaderType represents the type of upload backend
type UploaderType string

const (
	UploaderTypePhotos UploaderType = "photos"
	UploaderTypeS3     UploaderType = "s3"
)

// UploaderConfig holds the configuration for the upload collaborator
type UploaderConfig struct {
	UploaderType UploaderType `json:"type" yaml:"type" toml:"type"`

	// Common options for all uploaders
	Common CommonUploaderConfig `json:"common,omitempty" yaml:"common,omitempty" toml:"common,omitempty"`

	// Type-specific configurations
	Photos *PhotosConfig `json:"photos,omitempty" yaml:"photos,omitempty" toml:"photos,omitempty"`
	S3     *S3Config     `json:"s3,omitempty" yaml:"s3,omitempty" toml:"s3,omitempty"`
}

// CommonUploaderConfig contains general settings applicable to all uploaders
type CommonUploaderConfig struct {
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" toml:"timeout_seconds,omitempty"` // optional: timeout for metadata calls (the byte upload itself is unbounded)
}

// PhotosConfig holds photo-service API configuration
type PhotosConfig struct {
	BaseURL   string `json:"base_url" yaml:"base_url" toml:"base_url"`                                // API base URL
	AuthToken string `json:"auth_token,omitempty" yaml:"auth_token,omitempty" toml:"auth_token,omitempty"` // Opaque bearer token, passed through as given
}

// S3Config holds S3-specific configuration for the archive backend
type S3Config struct {
	Region          string `json:"region" yaml:"region" toml:"region"`
	Bucket          string `json:"bucket" yaml:"bucket" toml:"bucket"`
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty" toml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty" toml:"secret_access_key,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" toml:"endpoint,omitempty"` // For S3-compatible services
	Prefix          string `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix,omitempty"`       // Key prefix above the album path
	PartSizeBytes   int64  `json:"part_size_bytes,omitempty" yaml:"part_size_bytes,omitempty" toml:"part_size_bytes,omitempty"` // Multipart part size
}

// Validate ensures the configuration is valid for the specified uploader type
func (uc *UploaderConfig) Validate() error {
	if err := uc.Common.Validate(); err != nil {
		return err
	}

	switch uc.UploaderType {
	case UploaderTypePhotos:
		if uc.Photos == nil {
			return fmt.Errorf("photos configuration is required when type is 'photos'")
		}
		return uc.Photos.Validate()
	case UploaderTypeS3:
		if uc.S3 == nil {
			return fmt.Errorf("s3 configuration is required when type is 's3'")
		}
		return uc.S3.Validate()
	default:
		return fmt.Errorf("unsupported uploader type: %s", uc.UploaderType)
	}
}

// GetActiveConfig returns the active configuration based on the uploader type
func (uc *UploaderConfig) GetActiveConfig() interface{} {
	switch uc.UploaderType {
	case UploaderTypePhotos:
		return uc.Photos
	case UploaderTypeS3:
		return uc.S3
	default:
		return nil
	}
}

// ApplyDefaults sets default values for common uploader configuration
func (c *CommonUploaderConfig) ApplyDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 60
	}
}

// Validate validates common uploader configuration
func (c *CommonUploaderConfig) Validate() error {
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds cannot be negative")
	}
	return nil
}

// Validate validates photo-service configuration
func (pc *PhotosConfig) Validate() error {
	if pc.BaseURL == "" {
		return fmt.Errorf("photos base_url is required")
	}
	if pc.AuthToken == "" {
		return fmt.Errorf("photos auth_token is required")
	}
	return nil
}

// Validate validates S3 configuration
func (s3c *S3Config) Validate() error {
	if s3c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if s3c.Region == "" && s3c.Endpoint == "" {
		return fmt.Errorf("s3 region or endpoint is required")
	}
	if s3c.AccessKeyID == "" {
		return fmt.Errorf("s3 access key is required")
	}
	if s3c.SecretAccessKey == "" {
		return fmt.Errorf("s3 secret key is required")
	}
	if s3c.PartSizeBytes < 0 {
		return fmt.Errorf("s3 part_size_bytes cannot be negative")
	}
	return nil
}

// ApplyDefaults sets default values for S3 configuration
func (s3c *S3Config) ApplyDefaults() {
	if s3c.PartSizeBytes == 0 {
		s3c.PartSizeBytes = 64 * 1024 * 1024
	}
}
