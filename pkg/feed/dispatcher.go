// Package feed consumes the live websocket feed of a timer.
package feed

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/simplefpvtimer/sftctl/pkg/model"
)

// OffsetSource provides the clock offset (client - device) in ms.
// *timesync.Service satisfies it.
type OffsetSource interface {
	Offset() int64
}

type fixedOffset int64

func (f fixedOffset) Offset() int64 { return int64(f) }

// Dispatcher decodes feed messages and hands them to the registered
// handlers. Handlers run on the goroutine calling Dispatch.
type Dispatcher struct {
	mu      sync.RWMutex
	offset  OffsetSource
	players []func([]model.Player)
	ctf     []func(model.Ctf)
	rssi    []func(model.RssiEvent)
}

// NewDispatcher patches device timestamps with offset. A nil offset leaves
// them unchanged.
func NewDispatcher(offset OffsetSource) *Dispatcher {
	if offset == nil {
		offset = fixedOffset(0)
	}
	return &Dispatcher{offset: offset}
}

func (d *Dispatcher) OnPlayers(h func([]model.Player)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.players = append(d.players, h)
}

func (d *Dispatcher) OnCtf(h func(model.Ctf)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctf = append(d.ctf, h)
}

func (d *Dispatcher) OnRssi(h func(model.RssiEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rssi = append(d.rssi, h)
}

// Dispatch handles one raw message. Unknown types are ignored.
func (d *Dispatcher) Dispatch(raw []byte) error {
	var env model.WsEvent
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode feed message: %w", err)
	}
	// handlers run without the lock so they may register further handlers
	d.mu.RLock()
	onPlayers := slices.Clone(d.players)
	onCtf := slices.Clone(d.ctf)
	onRssi := slices.Clone(d.rssi)
	d.mu.RUnlock()

	switch env.Type {
	case model.EventPlayers:
		var ev model.PlayersEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decode players event: %w", err)
		}
		off := d.offset.Offset()
		players := make([]model.Player, len(ev.Players))
		for i := range ev.Players {
			players[i] = ev.Players[i].PatchTime(off)
		}
		for _, h := range onPlayers {
			h(model.ClonePlayers(players))
		}
	case model.EventCtf:
		var ev model.CtfEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decode ctf event: %w", err)
		}
		for _, h := range onCtf {
			h(ev.Ctf)
		}
	case model.EventRssi:
		var ev model.RssiEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decode rssi event: %w", err)
		}
		off := d.offset.Offset()
		for i := range ev.Data {
			ev.Data[i].T += off
		}
		for _, h := range onRssi {
			h(ev)
		}
	}
	return nil
}
