package mirror

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"

	"github.com/studioops/podmirror/internal/config"
)

// burstMultiplier controls the token bucket burst size relative to the
// per-second rate. A 2x burst lets short savings be spent on the next read
// without raising sustained throughput above the configured limit.
const burstMultiplier = 2

// maxWaitChunk caps how many tokens a single read requests, so one large
// read cannot demand more than the bucket can ever hold.
const maxWaitChunk = 32 * 1024

// BandwidthLimiter rate-limits aggregate upload throughput. One limiter is
// shared by all transfer workers so the daemon stays a background citizen on
// the pod's shared network link.
type BandwidthLimiter struct {
	limiter *rate.Limiter
}

// NewBandwidthLimiter creates a limiter from the bandwidth_limit config
// string. Returns nil for "0" or empty (unlimited); the nil receiver is
// safe to use.
func NewBandwidthLimiter(bandwidthLimit string) (*BandwidthLimiter, error) {
	bytesPerSec, err := config.ParseBandwidthRate(bandwidthLimit)
	if err != nil {
		return nil, fmt.Errorf("mirror: parse bandwidth limit %q: %w", bandwidthLimit, err)
	}

	if bytesPerSec == 0 {
		return nil, nil //nolint:nilnil // nil limiter = unlimited, nil-safe methods
	}

	burst := int(bytesPerSec) * burstMultiplier

	return &BandwidthLimiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}, nil
}

// WrapReader returns a rate-limited io.Reader. If bl is nil, returns r
// unchanged.
func (bl *BandwidthLimiter) WrapReader(ctx context.Context, r io.Reader) io.Reader {
	if bl == nil {
		return r
	}

	return &limitedReader{ctx: ctx, r: r, limiter: bl.limiter}
}

type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	// Never request more tokens than the bucket can hold: at low limits the
	// burst is smaller than maxWaitChunk and WaitN rejects oversized asks.
	chunk := maxWaitChunk
	if burst := lr.limiter.Burst(); burst < chunk {
		chunk = burst
	}

	if len(p) > chunk {
		p = p[:chunk]
	}

	n, err := lr.r.Read(p)
	if n > 0 {
		if waitErr := lr.limiter.WaitN(lr.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}
