package ranking

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/samber/lo"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/simplefpvtimer/sftctl/pkg/model"
)

// Unranked is the rank of players without a feasible score.
const Unranked = 0

type PlayerRanking struct {
	Player model.Player
	Score  Score
	Rank   int
	// laps that produced the score, in evaluation order
	CountedLaps []model.Lap
}

func (r PlayerRanking) Ranked() bool {
	return r.Rank != Unranked
}

// Rank evaluates players with the given mode. The result is ordered by player
// name while Rank carries the competitive placement (1 is best).
// Players are not modified.
func Rank(players []model.Player, mode Mode) []PlayerRanking {
	ret := make([]PlayerRanking, 0, len(players))
	for i := range players {
		ret = append(ret, Evaluate(players[i], mode))
	}

	slices.SortStableFunc(ret, func(a, b PlayerRanking) int {
		return a.Score.Compare(b.Score)
	})
	for i := range ret {
		if ret[i].Score.IsFeasible() {
			ret[i].Rank = i + 1
		} else {
			ret[i].Rank = Unranked
		}
	}

	sortByName(ret)
	return ret
}

// Evaluate scores a single player. Rank is left Unranked.
func Evaluate(p model.Player, mode Mode) PlayerRanking {
	player := p.Clone()
	laps := validLaps(player.Laps)

	num, sel := mode.rule()
	ret := PlayerRanking{Player: player, Score: Infeasible(), CountedLaps: []model.Lap{}}
	if len(laps) == 0 || len(laps) < num {
		return ret
	}

	switch sel {
	case byID:
		sortByID(laps)
		ret.CountedLaps = laps[:num]
		ret.Score = Feasible(sumDuration(ret.CountedLaps))
	case byDuration:
		sortByDuration(laps)
		ret.CountedLaps = laps[:num]
		ret.Score = Feasible(sumDuration(ret.CountedLaps))
	case consecutive:
		start, sum := fastestWindow(laps, num)
		ret.CountedLaps = laps[start : start+num]
		ret.Score = Feasible(sum)
	case byCount:
		sortByID(laps)
		ret.CountedLaps = laps
		ret.Score = LapCount(len(laps), sumDuration(laps))
	}
	return ret
}

// negative durations are treated as corrupt reports and ignored
func validLaps(laps []model.Lap) []model.Lap {
	return lo.Filter(laps, func(l model.Lap, _ int) bool {
		return l.Duration >= 0
	})
}

func sumDuration(laps []model.Lap) int64 {
	return lo.SumBy(laps, func(l model.Lap) int64 { return l.Duration })
}

// fastestWindow returns the start index and sum of the first window of num
// laps (arrival order) with the minimal summed duration.
func fastestWindow(laps []model.Lap, num int) (start int, sum int64) {
	sum = sumDuration(laps[:num])
	cur := sum
	for i := 1; i+num <= len(laps); i++ {
		cur += laps[i+num-1].Duration - laps[i-1].Duration
		if cur < sum {
			sum = cur
			start = i
		}
	}
	return start, sum
}

func sortByID(laps []model.Lap) {
	slices.SortStableFunc(laps, func(a, b model.Lap) int {
		if c := cmp.Compare(a.ID, b.ID); c != 0 {
			return c
		}
		return cmp.Compare(a.AbsTime, b.AbsTime)
	})
}

func sortByDuration(laps []model.Lap) {
	slices.SortStableFunc(laps, func(a, b model.Lap) int {
		return cmp.Compare(a.Duration, b.Duration)
	})
}

func sortByName(r []PlayerRanking) {
	c := collate.New(language.Und)
	slices.SortStableFunc(r, func(a, b PlayerRanking) int {
		return c.CompareString(a.Player.Name, b.Player.Name)
	})
}

// Medal is the placement marker shown next to a player name.
func Medal(rank int) string {
	switch rank {
	case Unranked:
		return ""
	case 1:
		return "🏆"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return lo.Ternary(rank > 0, strconv.Itoa(rank)+".", "")
	}
}
