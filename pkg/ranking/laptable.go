package ranking

import (
	"cmp"
	"slices"

	"github.com/simplefpvtimer/sftctl/pkg/model"
)

type LapRow struct {
	Player string
	Lap    model.Lap
	// 1..3 for the three fastest laps of all players, 0 otherwise
	Podium int
}

// LapTable lists the laps of all players, newest first.
func LapTable(players []model.Player) []LapRow {
	rows := make([]LapRow, 0)
	for i := range players {
		for _, l := range players[i].Laps {
			rows = append(rows, LapRow{Player: players[i].Name, Lap: l})
		}
	}

	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(rows[a].Lap.Duration, rows[b].Lap.Duration)
	})
	for place := 0; place < 3 && place < len(idx); place++ {
		rows[idx[place]].Podium = place + 1
	}

	slices.SortStableFunc(rows, func(a, b LapRow) int {
		return cmp.Compare(b.Lap.AbsTime, a.Lap.AbsTime)
	})
	return rows
}

// PodiumMarker is the medal appended to the duration of podium laps.
func PodiumMarker(place int) string {
	switch place {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return ""
	}
}

// SortRowsByDuration orders rows fastest first, keeping the podium marks.
func SortRowsByDuration(rows []LapRow) {
	slices.SortStableFunc(rows, func(a, b LapRow) int {
		return cmp.Compare(a.Lap.Duration, b.Lap.Duration)
	})
}
