package segarchive

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iamNilotpal/segarchive/internal/archive"
	"github.com/iamNilotpal/segarchive/pkg/logger"
	"github.com/iamNilotpal/segarchive/pkg/options"
)

// New builds a ready-to-use Instance: it loads the ambient AWS SDK
// configuration, constructs an S3 client honoring the region, endpoint,
// and path-style settings carried in the archive's Config, provisions the
// archive's bucket, and tags a structured logger with service.
//
// reg is the Prometheus registerer the archive's operation counters are
// registered against; pass nil to skip registration (tests typically do).
func New(ctx context.Context, service string, production bool, reg prometheus.Registerer, opts ...options.OptionFunc) (*Instance, error) {
	cfg := options.NewDefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	log, err := logger.New(service, production)
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	backend, err := archive.NewArchive(ctx, client, &cfg, log, reg)
	if err != nil {
		return nil, err
	}

	return NewInstance(backend, &cfg, log), nil
}
