package options

import "time"

const (
	// DefaultRegion is the object-store region used when none is configured.
	DefaultRegion = "us-east-1"

	// DefaultForcePathStyle selects path-style bucket addressing by
	// default, since most S3-compatible stores other than AWS itself
	// require it.
	DefaultForcePathStyle = true

	// DefaultMaxConcurrentFetches is the default Config.MaxConcurrentFetches.
	DefaultMaxConcurrentFetches = 4

	// DefaultChunkSize is the default Config.ChunkSize, matching the fixed
	// page size segments are framed in.
	DefaultChunkSize = 4096

	// DefaultRequestTimeout is the default Config.RequestTimeout.
	DefaultRequestTimeout = 30 * time.Second
)

// defaultConfig holds the default configuration settings for an archive
// instance, excluding the required Bucket and ClusterID fields.
var defaultConfig = Config{
	Region:               DefaultRegion,
	ForcePathStyle:       DefaultForcePathStyle,
	MaxConcurrentFetches: DefaultMaxConcurrentFetches,
	ChunkSize:            DefaultChunkSize,
	RequestTimeout:       DefaultRequestTimeout,
}

// NewDefaultConfig returns a Config populated with default values for
// every field except Bucket and ClusterID, which the caller must supply.
func NewDefaultConfig() Config {
	return defaultConfig
}
