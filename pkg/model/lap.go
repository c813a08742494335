package model

// Lap is one completed timing interval reported by a node.
// AbsTime is in device clock epoch milliseconds.
type Lap struct {
	ID       int   `json:"id"`
	Duration int64 `json:"duration"`
	AbsTime  int64 `json:"abs_time"`
	Rssi     int   `json:"rssi"`
}

type Player struct {
	Name   string `json:"name"`
	IPAddr string `json:"ipaddr"`
	Laps   []Lap  `json:"laps"`
}

// Clone returns a copy of p which does not share the lap slice.
func (p Player) Clone() Player {
	ret := p
	ret.Laps = make([]Lap, len(p.Laps))
	copy(ret.Laps, p.Laps)
	return ret
}

// PatchTime returns a copy of p with offset added to every lap timestamp.
// With offset = client - server this converts device time to client time.
func (p Player) PatchTime(offset int64) Player {
	ret := p.Clone()
	for i := range ret.Laps {
		ret.Laps[i].AbsTime += offset
	}
	return ret
}

func (p Player) TotalDuration() int64 {
	var sum int64
	for i := range p.Laps {
		sum += p.Laps[i].Duration
	}
	return sum
}

func ClonePlayers(players []Player) []Player {
	ret := make([]Player, len(players))
	for i := range players {
		ret[i] = players[i].Clone()
	}
	return ret
}

// LapReport is sent by a node to the controller when a lap was detected.
//
//nolint:tagliatelle // device compatibility
type LapReport struct {
	IPv4     string `json:"ipv4"`
	Player   string `json:"player"`
	ID       int    `json:"id"`
	Duration int64  `json:"duration"`
	Rssi     int    `json:"rssi"`
	AbsTime  *int64 `json:"abs_time,omitempty"`
}
