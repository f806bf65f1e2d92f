//go:build !gcp

package anchor

import (
	"context"
	"fmt"
)

func newGCSSink(ctx context.Context, cfg SinkConfig) (Sink, error) {
	return nil, fmt.Errorf("GCS anchor sink is not enabled in this build (use -tags gcp)")
}
