package mirror

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBandwidthLimiter_UnlimitedIsNil(t *testing.T) {
	bl, err := NewBandwidthLimiter("0")
	require.NoError(t, err)
	assert.Nil(t, bl)

	bl, err = NewBandwidthLimiter("")
	require.NoError(t, err)
	assert.Nil(t, bl)
}

func TestNewBandwidthLimiter_InvalidRate(t *testing.T) {
	_, err := NewBandwidthLimiter("warp speed")
	assert.Error(t, err)
}

func TestWrapReader_NilLimiterPassthrough(t *testing.T) {
	var bl *BandwidthLimiter

	r := strings.NewReader("data")
	wrapped := bl.WrapReader(context.Background(), r)
	assert.Equal(t, io.Reader(r), wrapped)
}

func TestWrapReader_DataArrivesIntact(t *testing.T) {
	bl, err := NewBandwidthLimiter("1MB/s")
	require.NoError(t, err)
	require.NotNil(t, bl)

	payload := bytes.Repeat([]byte("x"), 10_000)
	wrapped := bl.WrapReader(context.Background(), bytes.NewReader(payload))

	got, err := io.ReadAll(wrapped)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWrapReader_ThrottlesBelowRate(t *testing.T) {
	// 100KB/s with a 200KB burst: reading 300KB must take at least ~1s of
	// waiting beyond the burst allowance. Keep the bound loose so slow CI
	// machines do not flake.
	bl, err := NewBandwidthLimiter("100KB/s")
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("x"), 300_000)
	wrapped := bl.WrapReader(context.Background(), bytes.NewReader(payload))

	start := time.Now()
	_, err = io.ReadAll(wrapped)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

func TestWrapReader_LimitBelowChunkSize(t *testing.T) {
	// At 8KB/s the bucket's burst (16KB) is smaller than the 32KB read
	// chunk; reads must shrink to the burst instead of asking for more
	// tokens than the bucket can ever hold.
	bl, err := NewBandwidthLimiter("8KB/s")
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("x"), 64*1024)
	wrapped := bl.WrapReader(context.Background(), bytes.NewReader(payload))

	buf := make([]byte, 64*1024)
	n, err := wrapped.Read(buf)
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.LessOrEqual(t, n, bl.limiter.Burst())
}

func TestWrapReader_CanceledContext(t *testing.T) {
	bl, err := NewBandwidthLimiter("1KB/s")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wrapped := bl.WrapReader(ctx, bytes.NewReader(bytes.Repeat([]byte("x"), 100_000)))

	_, err = io.ReadAll(wrapped)
	assert.Error(t, err)
}
