package duration

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(name string, v float64, err error, calls *[]string) Strategy {
	return Strategy{Name: name, Estimate: func(context.Context, string) (float64, error) {
		*calls = append(*calls, name)
		return v, err
	}}
}

func TestEstimator_StopsAtFirstValidResult(t *testing.T) {
	var calls []string
	e := New(
		fixed("first", 125.4, nil, &calls),
		fixed("second", 999, nil, &calls),
	)

	assert.Equal(t, 125, e.Estimate(context.Background(), "x.mp3"))
	assert.Equal(t, []string{"first"}, calls)
}

func TestEstimator_FallsThroughInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		err  error
	}{
		{"error", 0, errors.New("boom")},
		{"zero", 0, nil},
		{"negative", -3, nil},
		{"nan", math.NaN(), nil},
		{"inf", math.Inf(1), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			e := New(
				fixed("bad", tt.v, tt.err, &calls),
				fixed("good", 61, nil, &calls),
			)
			assert.Equal(t, 61, e.Estimate(context.Background(), "x.mp3"))
			assert.Equal(t, []string{"bad", "good"}, calls)
		})
	}
}

func TestEstimator_TimeoutMovesToNextStrategy(t *testing.T) {
	slow := Strategy{Name: "slow", Timeout: 20 * time.Millisecond, Estimate: func(ctx context.Context, _ string) (float64, error) {
		select {
		case <-time.After(5 * time.Second):
			return 100, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}}
	var calls []string
	e := New(slow, fixed("fast", 42, nil, &calls))

	start := time.Now()
	assert.Equal(t, 42, e.Estimate(context.Background(), "x.mp3"))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEstimator_TimeoutEvenIfStrategyIgnoresContext(t *testing.T) {
	stuck := Strategy{Name: "stuck", Timeout: 20 * time.Millisecond, Estimate: func(context.Context, string) (float64, error) {
		time.Sleep(300 * time.Millisecond)
		return 100, nil
	}}
	var calls []string
	e := New(stuck, fixed("fast", 7, nil, &calls))

	assert.Equal(t, 7, e.Estimate(context.Background(), "x.mp3"))
}

func TestEstimator_AllFailReturnsZero(t *testing.T) {
	var calls []string
	e := New(fixed("a", 0, errors.New("a"), &calls), fixed("b", 0, nil, &calls))

	assert.Equal(t, 0, e.Estimate(context.Background(), "x.mp3"))
}

func TestEstimator_SubSecondRoundsUpToOne(t *testing.T) {
	var calls []string
	e := New(fixed("tiny", 0.2, nil, &calls))

	assert.Equal(t, 1, e.Estimate(context.Background(), "x.mp3"))
}

func TestSizeHeuristic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audio.webm")
	require.NoError(t, os.WriteFile(path, make([]byte, 3<<20), 0o644))

	e := New(SizeHeuristic())
	assert.Equal(t, 180, e.Estimate(context.Background(), path))

	empty := filepath.Join(dir, "empty.webm")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.Equal(t, 0, e.Estimate(context.Background(), empty))

	assert.Equal(t, 0, e.Estimate(context.Background(), filepath.Join(dir, "missing.webm")))
}

func TestParseProbeOutput(t *testing.T) {
	v, err := parseProbeOutput("  93.504000\n")
	require.NoError(t, err)
	assert.InDelta(t, 93.504, v, 0.0001)

	_, err = parseProbeOutput("N/A\n")
	assert.Error(t, err)

	_, err = parseProbeOutput("")
	assert.Error(t, err)
}

func TestParseDecodeOutput(t *testing.T) {
	out := "size=N/A time=00:00:10.00 bitrate=N/A speed=20x\r" +
		"size=N/A time=00:12:31.48 bitrate=N/A speed=21x\n" +
		"video:0kB audio:0kB"

	v, err := parseDecodeOutput(out)
	require.NoError(t, err)
	assert.InDelta(t, 751.48, v, 0.001)

	_, err = parseDecodeOutput("Invalid data found when processing input")
	assert.Error(t, err)
}

func TestEstimateFromSize(t *testing.T) {
	assert.Equal(t, 0.0, EstimateFromSize(0))
	assert.Equal(t, 60.0, EstimateFromSize(1<<20))
	assert.InDelta(t, 30.0, EstimateFromSize(1<<19), 0.0001)
}
