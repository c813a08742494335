package cmdutil

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplefpvtimer/sftctl/pkg/ctf"
	"github.com/simplefpvtimer/sftctl/pkg/model"
	"github.com/simplefpvtimer/sftctl/pkg/ranking"
	"github.com/simplefpvtimer/sftctl/pkg/rssi"
)

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func TestPrintRanking(t *testing.T) {
	players := []model.Player{
		{Name: "bob", Laps: []model.Lap{{ID: 1, Duration: 5000}}},
		{Name: "anna", Laps: []model.Lap{{ID: 1, Duration: 4200}, {ID: 2, Duration: 4100}}},
		{Name: "carl"},
	}
	var buf bytes.Buffer
	require.NoError(t, PrintRanking(&buf, ranking.Rank(players, ranking.FastestLap), ranking.FastestLap))
	got := lines(&buf)
	require.Len(t, got, 5)
	assert.Equal(t, "Fastest Lap", got[0])
	assert.Contains(t, got[2], "anna")
	assert.Contains(t, got[2], "4s 100ms")
	assert.Contains(t, got[2], "#2 0h0m4.100s")
	assert.Contains(t, got[3], "🥈")
	assert.Contains(t, got[4], "carl")
	assert.Contains(t, got[4], "-")
}

func TestPrintLapTable(t *testing.T) {
	abs := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local).UnixMilli()
	rows := ranking.LapTable([]model.Player{
		{Name: "anna", Laps: []model.Lap{{ID: 1, Duration: 4000, AbsTime: abs, Rssi: 80}}},
	})
	var buf bytes.Buffer
	require.NoError(t, PrintLapTable(&buf, rows, 1500))
	got := lines(&buf)
	require.Len(t, got, 2)
	assert.Contains(t, got[1], "10:00:01.500")
	assert.Contains(t, got[1], "4s 0ms 🥇")
}

func TestPrintNodes(t *testing.T) {
	now := time.UnixMilli(100_000)
	nodes := []model.Node{
		{Name: "gate", IPAddr: "10.0.0.1", LastSeen: 95_000},
		{Name: "old", IPAddr: "10.0.0.2", LastSeen: 10_000},
	}
	var buf bytes.Buffer
	require.NoError(t, PrintNodes(&buf, nodes, now, 0, 30*time.Second))
	got := lines(&buf)
	require.Len(t, got, 3)
	assert.Contains(t, got[1], "5s ago")
	assert.True(t, strings.HasSuffix(got[1], "ok"))
	assert.True(t, strings.HasSuffix(got[2], "stale"))
}

func TestPrintStandings(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Rssi[0].Name = "red"
	s := ctf.Score(model.Ctf{
		TeamNames:  []string{"red", "blue"},
		Nodes:      []model.CtfNode{{Name: "tower", IPv4: "10.0.0.5", Current: 0, CapturedMs: []int64{3000, 1000}}},
		TimeLeftMs: 60_000,
	})
	var buf bytes.Buffer
	require.NoError(t, PrintStandings(&buf, s, &cfg))
	got := buf.String()
	assert.Contains(t, got, "time left 1m 0s 0ms")
	assert.Contains(t, got, "#e2ff05")
	assert.Contains(t, got, ctf.DefaultColor)
	assert.Contains(t, got, "tower")
}

func TestPrintRssi(t *testing.T) {
	cfg := model.DefaultConfig()
	q := rssi.NewQueue(5917,
		model.RssiData{T: 1, S: 100},
		model.RssiData{T: 2, S: 700, I: true})
	var buf bytes.Buffer
	require.NoError(t, PrintRssi(&buf, []rssi.Summary{q.Summarize()}, &cfg))
	got := lines(&buf)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"5917", "2", "100", "700", "700", "50%", "720", "630"}, strings.Fields(got[1]))
}
