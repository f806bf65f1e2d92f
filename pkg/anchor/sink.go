package anchor

import (
	"context"
	"fmt"
)

// SinkType selects an anchor storage backend.
type SinkType string

const (
	SinkFile SinkType = "file"
	SinkS3   SinkType = "s3"
	SinkGCS  SinkType = "gcs"
)

// SinkConfig describes where anchors go. Dir is used by the file sink;
// the other fields by the object stores.
type SinkConfig struct {
	Type     SinkType
	Dir      string
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// NewSink creates the sink named by cfg.Type. The default is a file sink.
func NewSink(ctx context.Context, cfg SinkConfig) (Sink, error) {
	switch cfg.Type {
	case "", SinkFile:
		dir := cfg.Dir
		if dir == "" {
			dir = "anchors"
		}
		return NewFileSink(dir)
	case SinkS3:
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Sink(ctx, S3Config{Bucket: cfg.Bucket, Region: region, Endpoint: cfg.Endpoint, Prefix: cfg.Prefix})
	case SinkGCS:
		return newGCSSink(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported anchor sink type: %s", cfg.Type)
	}
}
