// Package options provides data structures and functions for configuring
// the segment archive. It defines the parameters that control how the
// archive addresses its backing object store, plus transfer-tuning fields
// (MaxConcurrentFetches, ChunkSize, RequestTimeout) that are carried in the
// configuration but not read by the archive.
package options

import (
	"strings"
	"time"
)

// Config defines the configuration parameters for an archive instance. It
// provides control over object-store addressing and transfer behavior.
type Config struct {
	// Bucket is the object-store bucket every key is scoped under.
	//
	// Default: none — required.
	Bucket string `json:"bucket"`

	// ClusterID scopes every namespace's keys under a shared folder prefix,
	// allowing one bucket to host multiple clusters.
	//
	// Default: none — required.
	ClusterID string `json:"clusterId"`

	// Endpoint overrides the object-store service endpoint, for use with
	// S3-compatible stores that aren't AWS itself.
	//
	// Default: "" (use the AWS SDK's default endpoint resolution)
	Endpoint string `json:"endpoint"`

	// Region is the object-store region to address.
	//
	// Default: "us-east-1"
	Region string `json:"region"`

	// ForcePathStyle selects path-style bucket addressing
	// (https://endpoint/bucket/key) instead of virtual-hosted style
	// (https://bucket.endpoint/key). Required by most S3-compatible
	// stores that don't support virtual-hosted addressing.
	//
	// Default: true
	ForcePathStyle bool `json:"forcePathStyle"`

	// MaxConcurrentFetches is the number of segment fetches (each a
	// concurrent data+index pair) a caller allows at once. The archive does
	// not read it: a restore walk fetches one segment at a time and a
	// listing issues one LIST request at a time.
	//
	// Default: 4
	MaxConcurrentFetches int `json:"maxConcurrentFetches"`

	// ChunkSize is a configured read size, in bytes, for streaming a
	// segment data file. The archive does not read it: uploads and
	// downloads always use the fixed transfer.ChunkSize of 4096 bytes.
	//
	// Default: 4096
	ChunkSize int `json:"chunkSize"`

	// RequestTimeout is a configured per-request timeout for object-store
	// requests. The archive does not apply it: requests run under the
	// caller's context and whatever timeouts the object-store client has.
	//
	// Default: 30s
	RequestTimeout time.Duration `json:"requestTimeout"`
}

// OptionFunc is a function type that modifies the archive's configuration.
type OptionFunc func(*Config)

// WithDefaultOptions applies a predefined set of default configuration
// values to the Config struct.
func WithDefaultOptions() OptionFunc {
	return func(c *Config) {
		defaults := NewDefaultConfig()
		c.Region = defaults.Region
		c.ForcePathStyle = defaults.ForcePathStyle
		c.MaxConcurrentFetches = defaults.MaxConcurrentFetches
		c.ChunkSize = defaults.ChunkSize
		c.RequestTimeout = defaults.RequestTimeout
	}
}

// WithBucket sets the object-store bucket.
func WithBucket(bucket string) OptionFunc {
	return func(c *Config) {
		bucket = strings.TrimSpace(bucket)
		if bucket != "" {
			c.Bucket = bucket
		}
	}
}

// WithClusterID sets the cluster ID every namespace's keys are scoped under.
func WithClusterID(clusterID string) OptionFunc {
	return func(c *Config) {
		clusterID = strings.TrimSpace(clusterID)
		if clusterID != "" {
			c.ClusterID = clusterID
		}
	}
}

// WithEndpoint overrides the object-store service endpoint.
func WithEndpoint(endpoint string) OptionFunc {
	return func(c *Config) {
		c.Endpoint = strings.TrimSpace(endpoint)
	}
}

// WithRegion sets the object-store region.
func WithRegion(region string) OptionFunc {
	return func(c *Config) {
		region = strings.TrimSpace(region)
		if region != "" {
			c.Region = region
		}
	}
}

// WithForcePathStyle selects path-style (true) or virtual-hosted-style
// (false) bucket addressing.
func WithForcePathStyle(forcePathStyle bool) OptionFunc {
	return func(c *Config) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithMaxConcurrentFetches sets Config.MaxConcurrentFetches.
func WithMaxConcurrentFetches(n int) OptionFunc {
	return func(c *Config) {
		if n > 0 {
			c.MaxConcurrentFetches = n
		}
	}
}

// WithChunkSize sets Config.ChunkSize.
func WithChunkSize(size int) OptionFunc {
	return func(c *Config) {
		if size > 0 {
			c.ChunkSize = size
		}
	}
}

// WithRequestTimeout sets Config.RequestTimeout.
func WithRequestTimeout(timeout time.Duration) OptionFunc {
	return func(c *Config) {
		if timeout > 0 {
			c.RequestTimeout = timeout
		}
	}
}
