package ranking

import "fmt"

// Score is the result of evaluating a player. A zero Score is infeasible.
type Score struct {
	feasible bool
	laps     int
	duration int64
	byCount  bool
}

func Infeasible() Score {
	return Score{}
}

// Feasible is a score based on the summed duration of the counted laps.
func Feasible(duration int64) Score {
	return Score{feasible: true, duration: duration}
}

// LapCount is a score where more laps win and the total duration breaks ties.
func LapCount(laps int, duration int64) Score {
	return Score{feasible: true, laps: laps, duration: duration, byCount: true}
}

func (s Score) IsFeasible() bool {
	return s.feasible
}

// Duration returns the summed duration in ms and false for infeasible scores.
func (s Score) Duration() (int64, bool) {
	return s.duration, s.feasible
}

func (s Score) Laps() int {
	return s.laps
}

// Compare orders scores best first. Infeasible scores are last and equal to
// each other.
func (s Score) Compare(o Score) int {
	switch {
	case !s.feasible && !o.feasible:
		return 0
	case !s.feasible:
		return 1
	case !o.feasible:
		return -1
	}
	if s.byCount && o.byCount && s.laps != o.laps {
		if s.laps > o.laps {
			return -1
		}
		return 1
	}
	switch {
	case s.duration < o.duration:
		return -1
	case s.duration > o.duration:
		return 1
	default:
		return 0
	}
}

func (s Score) String() string {
	switch {
	case !s.feasible:
		return "infeasible"
	case s.byCount:
		return fmt.Sprintf("%d laps/%dms", s.laps, s.duration)
	default:
		return fmt.Sprintf("%dms", s.duration)
	}
}
