package ranking

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeLabels(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Modes() {
		assert.NotEmpty(t, m.Label(), "mode %d", int(m))
		assert.NotEmpty(t, m.String(), "mode %d", int(m))
		assert.False(t, seen[m.String()], "duplicate token %s", m)
		seen[m.String()] = true
	}
	assert.Len(t, Modes(), 9)
	assert.Equal(t, "Fastest Two Consecutive Laps", FastestTwoConsecutiveLaps.Label())
	assert.Equal(t, "Mode(42)", Mode(42).Label())
	assert.False(t, Mode(-1).Valid())
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "fastest-lap", want: FastestLap},
		{in: "Max Laps", want: MaxLaps},
		{in: " one-lap ", want: OneLap},
		{in: "8", want: FastestThreeConsecutiveLaps},
		{in: "0", want: OneLap},
		{in: "9", want: DefaultMode, wantErr: true},
		{in: "slowest", want: DefaultMode, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModeFlag(t *testing.T) {
	m := DefaultMode
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Var(&m, "mode", "race mode")
	require.NoError(t, fs.Parse([]string{"--mode", "max-laps"}))
	assert.Equal(t, MaxLaps, m)
	assert.Error(t, fs.Parse([]string{"--mode", "nope"}))
}
