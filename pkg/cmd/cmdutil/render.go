package cmdutil

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"

	"github.com/simplefpvtimer/sftctl/pkg/ctf"
	"github.com/simplefpvtimer/sftctl/pkg/model"
	"github.com/simplefpvtimer/sftctl/pkg/ranking"
	"github.com/simplefpvtimer/sftctl/pkg/rssi"
	"github.com/simplefpvtimer/sftctl/pkg/utils"
)

const clockFormat = "15:04:05.000"

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
}

// PrintRanking prints one line per player in name order.
func PrintRanking(out io.Writer, r []ranking.PlayerRanking, mode ranking.Mode) error {
	fmt.Fprintf(out, "%s\n", mode.Label())
	w := newTable(out)
	fmt.Fprintln(w, "RANK\tPLAYER\tSCORE\tLAPS")
	for i := range r {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			ranking.Medal(r[i].Rank),
			r[i].Player.Name,
			formatScore(r[i].Score),
			strings.Join(lo.Map(r[i].CountedLaps, func(l model.Lap, _ int) string {
				return fmt.Sprintf("#%d %s", l.ID, utils.FormatMsShort(l.Duration))
			}), ", "))
	}
	return w.Flush()
}

func formatScore(s ranking.Score) string {
	d, ok := s.Duration()
	switch {
	case !ok:
		return "-"
	case s.Laps() > 0:
		return fmt.Sprintf("%d laps / %s", s.Laps(), utils.FormatMs(d))
	default:
		return utils.FormatMs(d)
	}
}

// PrintLapTable prints the laps of all players. Lap times are shifted by
// offset (client - device).
func PrintLapTable(out io.Writer, rows []ranking.LapRow, offset int64) error {
	w := newTable(out)
	fmt.Fprintln(w, "TIME\tPLAYER\tLAP\tDURATION\tRSSI")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s %s\t%d\n",
			time.UnixMilli(r.Lap.AbsTime+offset).Format(clockFormat),
			r.Player,
			r.Lap.ID,
			utils.FormatMs(r.Lap.Duration),
			ranking.PodiumMarker(r.Podium),
			r.Lap.Rssi)
	}
	return w.Flush()
}

//nolint:whitespace // can't make both editor and linter happy
func PrintNodes(
	out io.Writer, nodes []model.Node, now time.Time, offset int64, staleAfter time.Duration,
) error {
	w := newTable(out)
	fmt.Fprintln(w, "NAME\tADDRESS\tLAST SEEN\tSTATE")
	for _, n := range nodes {
		ago := now.Sub(time.UnixMilli(n.LastSeen + offset)).Truncate(time.Second)
		state := lo.Ternary(staleAfter > 0 && ago > staleAfter, "stale", "ok")
		fmt.Fprintf(w, "%s\t%s\t%s ago\t%s\n", n.Name, n.IPAddr, ago, state)
	}
	return w.Flush()
}

// PrintStandings prints the team totals and the current node owners.
func PrintStandings(out io.Writer, s ctf.Standings, cfg *model.Config) error {
	fmt.Fprintf(out, "time left %s\n", utils.FormatMs(s.TimeLeftMs))
	leader, hasLeader := s.Leader()
	w := newTable(out)
	fmt.Fprintln(w, "TEAM\tCAPTURED\tCOLOR\t")
	for _, t := range s.Teams {
		color := ctf.DefaultColor
		if cfg != nil {
			color = ctf.TeamColor(*cfg, t.Team)
		}
		mark := lo.Ternary(hasLeader && t.Team == leader.Team, "*", "")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Team, utils.FormatMs(t.CapturedMs), color, mark)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	w = newTable(out)
	fmt.Fprintln(w, "NODE\tADDRESS\tOWNER")
	for _, o := range s.Owners {
		fmt.Fprintf(w, "%s\t%s\t%s\n", o.Node, o.IPv4, lo.Ternary(o.Team == "", "-", o.Team))
	}
	return w.Flush()
}

// PrintRssi prints the signal summary of every frequency. Slots of cfg with
// a matching frequency contribute their detection levels.
func PrintRssi(out io.Writer, sums []rssi.Summary, cfg *model.Config) error {
	w := newTable(out)
	fmt.Fprintln(w, "FREQ\tSAMPLES\tMIN\tMAX\tLAST\tINSIDE\tENTER\tLEAVE")
	for _, s := range sums {
		enter, leave := "-", "-"
		if cfg != nil {
			if slot, ok := lo.Find(cfg.Rssi, func(r model.RSSIConfig) bool { return r.Freq == s.Freq }); ok {
				lv := rssi.Thresholds(slot)
				enter, leave = fmt.Sprintf("%.0f", lv.Enter), fmt.Sprintf("%.0f", lv.Leave)
			}
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%.0f%%\t%s\t%s\n",
			s.Freq, s.Samples, s.Min, s.Max, s.Last.S, s.Inside*100, enter, leave)
	}
	return w.Flush()
}
