// Package race keeps the players and laps collected by a controller.
package race

import (
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/simplefpvtimer/sftctl/pkg/model"
)

// PlayerNotFoundError is returned for laps of unregistered nodes.
type PlayerNotFoundError struct {
	IPv4 string
	Name string
}

func (e *PlayerNotFoundError) Error() string {
	return fmt.Sprintf("player %q not found for %s", e.Name, e.IPv4)
}

type Option func(*Race)

func WithClock(c clockwork.Clock) Option {
	return func(r *Race) {
		r.clock = c
	}
}

type Race struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	players []model.Player
}

func New(opts ...Option) *Race {
	r := &Race{clock: clockwork.NewRealClock(), players: []model.Player{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddPlayer registers a player for a node address, false if known.
func (r *Race) AddPlayer(ipv4, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.find(ipv4) >= 0 {
		return false
	}
	r.players = append(r.players, model.Player{Name: name, IPAddr: ipv4, Laps: []model.Lap{}})
	return true
}

func (r *Race) FindPlayer(ipv4 string) (model.Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.find(ipv4); i >= 0 {
		return r.players[i].Clone(), true
	}
	return model.Player{}, false
}

// AddLap appends a reported lap and returns it. Reports without abs_time
// are stamped with the current time.
func (r *Race) AddLap(rep model.LapReport) (model.Lap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.find(rep.IPv4)
	if i < 0 {
		return model.Lap{}, &PlayerNotFoundError{IPv4: rep.IPv4, Name: rep.Player}
	}
	lap := model.Lap{ID: rep.ID, Duration: rep.Duration, Rssi: rep.Rssi}
	if rep.AbsTime != nil {
		lap.AbsTime = *rep.AbsTime
	} else {
		lap.AbsTime = r.clock.Now().UnixMilli()
	}
	r.players[i].Laps = append(r.players[i].Laps, lap)
	return lap, nil
}

// Reset clears the laps of all players.
func (r *Race) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.players {
		r.players[i].Laps = []model.Lap{}
	}
}

// Players returns a copy of the current state.
func (r *Race) Players() []model.Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return model.ClonePlayers(r.players)
}

func (r *Race) find(ipv4 string) int {
	for i := range r.players {
		if r.players[i].IPAddr == ipv4 {
			return i
		}
	}
	return -1
}
