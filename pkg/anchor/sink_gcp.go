//go:build gcp

package anchor

import "context"

func newGCSSink(ctx context.Context, cfg SinkConfig) (Sink, error) {
	return NewGCSSink(ctx, GCSConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
}
