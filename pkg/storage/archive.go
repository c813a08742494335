package storage

import (
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/segmentio/ksuid"

	"github.com/simplefpvtimer/sftctl/pkg/model"
)

const raceEntity = "race"

// ArchivedRace is a finished race as it was when the laps were cleared.
type ArchivedRace struct {
	ID      string         `msgpack:"id"`
	EndedAt time.Time      `msgpack:"ended_at"`
	Players []model.Player `msgpack:"players"`
}

func (r ArchivedRace) NumLaps() int {
	n := 0
	for i := range r.Players {
		n += len(r.Players[i].Laps)
	}
	return n
}

type Archive struct {
	store *BadgerStorage
}

func NewArchive(db *badger.DB) *Archive {
	return &Archive{store: NewStorage(raceEntity, db)}
}

// SaveRace stores the players and returns the new id. Races without any lap
// are not stored and yield an empty id.
func (a *Archive) SaveRace(players []model.Player, endedAt time.Time) (string, error) {
	r := ArchivedRace{EndedAt: endedAt.UTC(), Players: model.ClonePlayers(players)}
	if r.NumLaps() == 0 {
		return "", nil
	}
	id, err := ksuid.NewRandomWithTime(endedAt)
	if err != nil {
		return "", err
	}
	r.ID = id.String()
	if err := a.store.Put(r.ID, r); err != nil {
		return "", err
	}
	return r.ID, nil
}

// ListRaces returns all archived races, newest first.
func (a *Archive) ListRaces() ([]ArchivedRace, error) {
	ret := []ArchivedRace{}
	err := a.store.List(func(_ string, decode func(any) error) error {
		var r ArchivedRace
		if err := decode(&r); err != nil {
			return err
		}
		ret = append(ret, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(ret, func(x, y ArchivedRace) int {
		if c := y.EndedAt.Compare(x.EndedAt); c != 0 {
			return c
		}
		return strings.Compare(y.ID, x.ID)
	})
	return ret, nil
}

func (a *Archive) LoadRace(id string) (*ArchivedRace, error) {
	var r ArchivedRace
	if err := a.store.Get(id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (a *Archive) DeleteRace(id string) error {
	return a.store.Delete(id)
}
