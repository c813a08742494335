// Package rssi buffers signal samples per frequency.
package rssi

import (
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/simplefpvtimer/sftctl/pkg/model"
)

// Queue holds the samples of one frequency in arrival order.
type Queue struct {
	Freq    int
	Samples []model.RssiData
}

func NewQueue(freq int, samples ...model.RssiData) *Queue {
	return &Queue{Freq: freq, Samples: slices.Clone(samples)}
}

func (q *Queue) Add(samples ...model.RssiData) {
	q.Samples = append(q.Samples, samples...)
}

// Expire drops leading samples older than beforeMs.
func (q *Queue) Expire(beforeMs int64) {
	i := 0
	for i < len(q.Samples) && q.Samples[i].T < beforeMs {
		i++
	}
	q.Samples = slices.Delete(q.Samples, 0, i)
}

func (q *Queue) ExpireOlderThan(now time.Time, d time.Duration) {
	q.Expire(now.Add(-d).UnixMilli())
}

func (q *Queue) Latest() (model.RssiData, bool) {
	if len(q.Samples) == 0 {
		return model.RssiData{}, false
	}
	return q.Samples[len(q.Samples)-1], true
}

// Window returns the samples with startMs <= t <= endMs.
func (q *Queue) Window(startMs, endMs int64) []model.RssiData {
	return lo.Filter(q.Samples, func(d model.RssiData, _ int) bool {
		return d.T >= startMs && d.T <= endMs
	})
}

type Summary struct {
	Freq    int
	Samples int
	Min     int
	Max     int
	Last    model.RssiData
	// fraction of samples flagged inside the gate
	Inside float64
}

// Summarize evaluates the filtered values of the queue.
func (q *Queue) Summarize() Summary {
	ret := Summary{Freq: q.Freq, Samples: len(q.Samples)}
	if len(q.Samples) == 0 {
		return ret
	}
	values := lo.Map(q.Samples, func(d model.RssiData, _ int) int { return d.S })
	ret.Min = lo.Min(values)
	ret.Max = lo.Max(values)
	ret.Last = q.Samples[len(q.Samples)-1]
	ret.Inside = float64(lo.CountBy(q.Samples, func(d model.RssiData) bool { return d.I })) /
		float64(len(q.Samples))
	return ret
}

// Store keeps one queue per frequency in the order they were first seen.
type Store struct {
	mu     sync.Mutex
	queues []*Queue
}

func NewStore() *Store {
	return &Store{}
}

// Apply adds the samples of ev and drops samples older than maxAge.
func (s *Store) Apply(ev model.RssiEvent, maxAge time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := lo.Find(s.queues, func(q *Queue) bool { return q.Freq == ev.Freq })
	if !ok {
		q = NewQueue(ev.Freq)
		s.queues = append(s.queues, q)
	}
	q.Add(ev.Data...)
	if maxAge > 0 {
		q.ExpireOlderThan(now, maxAge)
	}
}

// Queues returns copies of all queues.
func (s *Store) Queues() []Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.queues, func(q *Queue, _ int) Queue {
		return Queue{Freq: q.Freq, Samples: slices.Clone(q.Samples)}
	})
}

func (s *Store) Summaries() []Summary {
	return lo.Map(s.Queues(), func(q Queue, _ int) Summary { return q.Summarize() })
}

// Levels are the signal levels of a receiver slot used for lap detection.
type Levels struct {
	Peak  float64
	Enter float64
	Leave float64
}

// Thresholds derives the enter and leave levels from the slot configuration.
func Thresholds(cfg model.RSSIConfig) Levels {
	peak := float64(cfg.Peak)
	return Levels{
		Peak:  peak,
		Enter: float64(cfg.OffsetEnter) / 100 * peak,
		Leave: float64(cfg.OffsetLeave) / 100 * peak,
	}
}
