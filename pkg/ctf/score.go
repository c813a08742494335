// Package ctf implements capture-the-flag scoring and the controller side
// game state.
package ctf

import (
	"fmt"

	"github.com/simplefpvtimer/sftctl/pkg/model"
)

// DefaultColor is used for teams without a matching receiver slot.
const DefaultColor = "#eeeeee"

type TeamScore struct {
	Team string
	// summed capture time over all nodes
	CapturedMs int64
}

type NodeOwner struct {
	Node string
	IPv4 string
	// empty if nobody holds the node
	Team string
}

type Standings struct {
	Teams  []TeamScore
	Owners []NodeOwner
	// highest team total, useful for scaling bars
	MaxMs      int64
	TimeLeftMs int64
}

// Score sums the capture times of every team over all nodes. The i-th entry
// of a node's captured_ms belongs to the i-th team name.
func Score(c model.Ctf) Standings {
	ret := Standings{
		Teams:      make([]TeamScore, len(c.TeamNames)),
		Owners:     make([]NodeOwner, 0, len(c.Nodes)),
		TimeLeftMs: c.TimeLeftMs,
	}
	idx := make(map[string]int, len(c.TeamNames))
	for i, name := range c.TeamNames {
		ret.Teams[i].Team = name
		if _, ok := idx[name]; !ok {
			idx[name] = i
		}
	}
	for _, n := range c.Nodes {
		for i, ms := range n.CapturedMs {
			if i >= len(c.TeamNames) {
				break
			}
			t := &ret.Teams[idx[c.TeamNames[i]]]
			t.CapturedMs += ms
			ret.MaxMs = max(ret.MaxMs, t.CapturedMs)
		}
		owner := NodeOwner{Node: n.Name, IPv4: n.IPv4}
		if n.Current >= 0 && n.Current < len(c.TeamNames) {
			owner.Team = c.TeamNames[n.Current]
		}
		ret.Owners = append(ret.Owners, owner)
	}
	return ret
}

// Leader returns the team with the highest total, false if no team scored.
func (s Standings) Leader() (TeamScore, bool) {
	var best TeamScore
	found := false
	for _, t := range s.Teams {
		if t.CapturedMs > best.CapturedMs {
			best, found = t, true
		}
	}
	return best, found
}

// TeamColor is the led color of the receiver slot named team as #rrggbb.
func TeamColor(cfg model.Config, team string) string {
	for _, r := range cfg.Rssi {
		if r.Name == team {
			return fmt.Sprintf("#%06x", r.LedColor&0xffffff)
		}
	}
	return DefaultColor
}
