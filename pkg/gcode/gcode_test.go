package gcode

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSentinelAppendsFooter(t *testing.T) {
	out, err := io.ReadAll(WithSentinel(strings.NewReader("G28\nG1 X10\n")))

	require.NoError(t, err)
	assert.Equal(t, "G28\nG1 X10\n"+Sentinel, string(out))
}

func TestParseEstimates(t *testing.T) {
	program := strings.Join([]string{
		"G28",
		"G1 X10 Y10",
		"; estimated printing time (normal mode) = 1d 2h 30m 12s",
		"; filament used [g] = 27.54",
	}, "\n")

	est, err := ParseEstimates(strings.NewReader(program))

	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour+2*time.Hour+30*time.Minute+12*time.Second, est.BuildTime)
	assert.Equal(t, 27.54, est.WeightG)
}

func TestParseEstimatesShortDuration(t *testing.T) {
	program := "; estimated printing time (normal mode) = 47m 3s\n"

	est, err := ParseEstimates(strings.NewReader(program))

	require.NoError(t, err)
	assert.Equal(t, 47*time.Minute+3*time.Second, est.BuildTime)
}

func TestParseEstimatesWeightOptional(t *testing.T) {
	program := "; estimated printing time (normal mode) = 2h\n"

	est, err := ParseEstimates(strings.NewReader(program))

	require.NoError(t, err)
	assert.Zero(t, est.WeightG)
}

func TestParseEstimatesMissingTimeErrors(t *testing.T) {
	_, err := ParseEstimates(strings.NewReader("G28\n; filament used [g] = 10\n"))

	assert.Error(t, err)
}

func TestParseEstimatesIgnoresNonComments(t *testing.T) {
	// The same text outside a comment must not be picked up.
	program := "M117 estimated printing time = 5h\n; estimated printing time = 1h\n"

	est, err := ParseEstimates(strings.NewReader(program))

	require.NoError(t, err)
	assert.Equal(t, time.Hour, est.BuildTime)
}
