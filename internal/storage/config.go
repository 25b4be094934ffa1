package storage

import "github.com/gogotex/gogotex/backend/collab-service/internal/config"

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// FromArchiveConfig maps the application archive settings; nil when archiving is disabled.
func FromArchiveConfig(c config.ArchiveConfig) *MinIOConfig {
	if c.Endpoint == "" {
		return nil
	}
	bucket := c.Bucket
	if bucket == "" {
		bucket = "collab-snapshots"
	}
	return &MinIOConfig{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		UseSSL:    c.UseSSL,
		Bucket:    bucket,
	}
}
