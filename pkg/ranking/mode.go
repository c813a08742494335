package ranking

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode selects how laps are evaluated. The numeric values are the ones the
// dashboard selector transmits.
type Mode int

const (
	OneLap Mode = iota
	TwoLaps
	ThreeLaps
	MaxLaps
	FastestLap
	FastestTwoLaps
	FastestThreeLaps
	FastestTwoConsecutiveLaps
	FastestThreeConsecutiveLaps

	numModes int = iota
)

// DefaultMode is used when nothing was selected.
const DefaultMode = FastestLap

type modeInfo struct {
	label string
	token string
}

// one entry per mode, indexed by Mode
var modeTable = [numModes]modeInfo{
	OneLap:                      {"One Lap", "one-lap"},
	TwoLaps:                     {"Two Laps", "two-laps"},
	ThreeLaps:                   {"Three Laps", "three-laps"},
	MaxLaps:                     {"Max Laps", "max-laps"},
	FastestLap:                  {"Fastest Lap", "fastest-lap"},
	FastestTwoLaps:              {"Fastest Two Laps", "fastest-two-laps"},
	FastestThreeLaps:            {"Fastest Three Laps", "fastest-three-laps"},
	FastestTwoConsecutiveLaps:   {"Fastest Two Consecutive Laps", "fastest-two-consecutive-laps"},
	FastestThreeConsecutiveLaps: {"Fastest Three Consecutive Laps", "fastest-three-consecutive-laps"},
}

func Modes() []Mode {
	ret := make([]Mode, numModes)
	for i := range ret {
		ret[i] = Mode(i)
	}
	return ret
}

func (m Mode) Valid() bool {
	return m >= 0 && int(m) < numModes
}

// Label is the text shown in the mode selector.
func (m Mode) Label() string {
	if !m.Valid() {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeTable[m].label
}

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeTable[m].token
}

// ParseMode accepts the token ("fastest-lap"), the label ("Fastest Lap")
// or the numeric wire value ("4").
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if m := Mode(n); m.Valid() {
			return m, nil
		}
		return DefaultMode, fmt.Errorf("unknown race mode %q", s)
	}
	for i := range modeTable {
		if strings.EqualFold(modeTable[i].token, s) || strings.EqualFold(modeTable[i].label, s) {
			return Mode(i), nil
		}
	}
	return DefaultMode, fmt.Errorf("unknown race mode %q", s)
}

// Set, Type and String make Mode usable as a pflag value.
func (m *Mode) Set(s string) error {
	v, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m *Mode) Type() string {
	return "raceMode"
}

// required laps and the way they are picked
func (m Mode) rule() (laps int, sel selection) {
	switch m {
	case OneLap:
		return 1, byID
	case TwoLaps:
		return 2, byID
	case ThreeLaps:
		return 3, byID
	case MaxLaps:
		return 1, byCount
	case FastestLap:
		return 1, byDuration
	case FastestTwoLaps:
		return 2, byDuration
	case FastestThreeLaps:
		return 3, byDuration
	case FastestTwoConsecutiveLaps:
		return 2, consecutive
	case FastestThreeConsecutiveLaps:
		return 3, consecutive
	default:
		return DefaultMode.rule()
	}
}

type selection int

const (
	byID selection = iota
	byDuration
	consecutive
	byCount
)
