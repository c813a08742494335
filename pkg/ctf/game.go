package ctf

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/simplefpvtimer/sftctl/pkg/model"
)

var (
	ErrConfigMismatch = errors.New("ctf config does not match")
	ErrNodeNotFound   = errors.New("ctf node not found")
	ErrInvalidUpdate  = errors.New("invalid ctf update")
)

// NodeError carries the node an update was rejected for.
type NodeError struct {
	Err  error
	IPv4 string
	Name string
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%v: %s (%s)", e.Err, e.Name, e.IPv4)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

type GameOption func(*Game)

func WithClock(c clockwork.Clock) GameOption {
	return func(g *Game) {
		g.clock = c
	}
}

// Game is the CTF state kept by the controller.
type Game struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	teamNames []string
	nodes     []model.CtfNode
	start     time.Time
	duration  time.Duration
}

func NewGame(opts ...GameOption) *Game {
	g := &Game{clock: clockwork.NewRealClock(), teamNames: []string{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OnConfigChange takes the team names from the active receiver slots and
// drops all nodes.
func (g *Game) OnConfigChange(cfg model.Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.teamNames = make([]string, 0, len(cfg.Rssi))
	for _, i := range cfg.ActiveRssi() {
		g.teamNames = append(g.teamNames, cfg.Rssi[i].Name)
	}
	g.nodes = nil
}

func (g *Game) TeamNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.teamNames)
}

// AddNode registers a node, false if the address is already known.
func (g *Game) AddNode(ipv4, name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.find(ipv4) != nil {
		return false
	}
	g.nodes = append(g.nodes, model.CtfNode{
		Name:       name,
		IPv4:       ipv4,
		Current:    model.NoTeam,
		CapturedMs: []int64{},
	})
	return true
}

// Update applies the state a node reported about itself as nodes[0].
// Captures are only taken over while a round is running.
func (g *Game) Update(msg model.CtfUpdate) error {
	if len(msg.Ctf.Nodes) == 0 {
		return fmt.Errorf("%w: missing node", ErrInvalidUpdate)
	}
	in := msg.Ctf.Nodes[0]
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Equal(msg.Ctf.TeamNames, g.teamNames) {
		return &NodeError{Err: ErrConfigMismatch, IPv4: in.IPv4, Name: in.Name}
	}
	n := g.find(in.IPv4)
	if n == nil {
		return &NodeError{Err: ErrNodeNotFound, IPv4: in.IPv4, Name: in.Name}
	}
	if g.running() {
		n.Current = in.Current
		n.CapturedMs = slices.Clone(in.CapturedMs)
	}
	return nil
}

// Start begins a round of duration d and resets all nodes. It returns the
// nodes that have to be notified.
func (g *Game) Start(d time.Duration) []model.CtfNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.start = g.clock.Now()
	g.duration = d
	for i := range g.nodes {
		g.nodes[i].Current = model.NoTeam
		g.nodes[i].CapturedMs = []int64{}
	}
	return g.cloneNodes()
}

// Stop ends the round. It returns the nodes that have to be notified.
func (g *Game) Stop() []model.CtfNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.start = time.Time{}
	g.duration = 0
	return g.cloneNodes()
}

func (g *Game) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running()
}

// TimeLeft is zero when no round is running.
func (g *Game) TimeLeft() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timeLeft()
}

// Snapshot is the state pushed to the dashboards.
func (g *Game) Snapshot() model.Ctf {
	g.mu.Lock()
	defer g.mu.Unlock()
	return model.Ctf{
		TeamNames:  slices.Clone(g.teamNames),
		Nodes:      g.cloneNodes(),
		TimeLeftMs: g.timeLeft().Milliseconds(),
	}
}

func (g *Game) running() bool {
	return g.timeLeft() > 0
}

func (g *Game) timeLeft() time.Duration {
	if g.start.IsZero() {
		return 0
	}
	return max(g.duration-g.clock.Since(g.start), 0)
}

func (g *Game) find(ipv4 string) *model.CtfNode {
	for i := range g.nodes {
		if g.nodes[i].IPv4 == ipv4 {
			return &g.nodes[i]
		}
	}
	return nil
}

func (g *Game) cloneNodes() []model.CtfNode {
	ret := make([]model.CtfNode, len(g.nodes))
	for i := range g.nodes {
		ret[i] = g.nodes[i]
		ret[i].CapturedMs = slices.Clone(g.nodes[i].CapturedMs)
	}
	return ret
}
