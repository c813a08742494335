// Package timesync estimates the offset between the local clock and the
// clock of a timer device with two request/response round trips.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/simplefpvtimer/sftctl/log"
	"github.com/simplefpvtimer/sftctl/pkg/model"
)

// stamps per side needed to compute the offset
const numStamps = 4

var ErrInvalidResponse = errors.New("invalid time-sync response")

// Exchanger sends the collected timestamps to the device, which answers with
// the client stamps echoed and its own time appended to server.
type Exchanger interface {
	Exchange(ctx context.Context, data model.TimeSyncData) (*model.TimeSyncData, error)
}

// ExchangeFunc adapts a function to Exchanger.
type ExchangeFunc func(ctx context.Context, data model.TimeSyncData) (*model.TimeSyncData, error)

func (f ExchangeFunc) Exchange(ctx context.Context, data model.TimeSyncData) (
	*model.TimeSyncData, error,
) {
	return f(ctx, data)
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithRoundTripTimeout bounds every single exchange. Zero disables it.
func WithRoundTripTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.rtTimeout = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.l = l
	}
}

// Service caches the clock offset of one device. Offset is client - server
// in milliseconds.
type Service struct {
	ex        Exchanger
	clock     clockwork.Clock
	rtTimeout time.Duration
	l         *log.Logger
	group     singleflight.Group

	mu     sync.RWMutex
	offset int64
	synced bool
}

func New(ex Exchanger, opts ...Option) *Service {
	s := &Service{
		ex:        ex,
		clock:     clockwork.NewRealClock(),
		rtTimeout: 5 * time.Second,
		l:         log.Default().Named("timesync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync returns the cached offset or runs the exchange with the device.
// Concurrent calls share a single exchange. A caller giving up via ctx does
// not abort the shared exchange, which is bounded by the round trip timeout.
// On error the offset stays unset.
func (s *Service) Sync(ctx context.Context) (int64, error) {
	if off, ok := s.cached(); ok {
		return off, nil
	}
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan("sync", func() (any, error) {
		if off, ok := s.cached(); ok {
			return off, nil
		}
		off, err := s.run(shared)
		if err != nil {
			return int64(0), err
		}
		s.mu.Lock()
		s.offset, s.synced = off, true
		s.mu.Unlock()
		return off, nil
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		//nolint:errcheck // always int64
		return res.Val.(int64), nil
	}
}

// Resync drops the cached offset and syncs again.
func (s *Service) Resync(ctx context.Context) (int64, error) {
	s.Reset()
	return s.Sync(ctx)
}

// Offset is the cached offset, 0 if not synced.
func (s *Service) Offset() int64 {
	off, _ := s.cached()
	return off
}

func (s *Service) Synced() bool {
	_, ok := s.cached()
	return ok
}

func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset, s.synced = 0, false
}

// ToClient converts a device timestamp to local time.
func (s *Service) ToClient(deviceMs int64) int64 {
	return deviceMs + s.Offset()
}

// ToDevice converts a local timestamp to device time.
func (s *Service) ToDevice(clientMs int64) int64 {
	return clientMs - s.Offset()
}

func (s *Service) cached() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset, s.synced
}

func (s *Service) now() int64 {
	return s.clock.Now().UnixMilli()
}

func (s *Service) run(ctx context.Context) (off int64, err error) {
	ctx, span := otel.Tracer("sft.timesync").Start(ctx, "timesync.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int64("offset", off))
		}
		span.End()
	}()
	data := model.TimeSyncData{Client: []int64{s.now()}}
	for round := 1; ; round++ {
		resp, err := s.roundTrip(ctx, data)
		if err != nil {
			return 0, fmt.Errorf("time-sync round %d: %w", round, err)
		}
		if len(resp.Client) == 0 || len(resp.Server) != len(resp.Client) {
			return 0, fmt.Errorf("%w: %d client and %d server stamps",
				ErrInvalidResponse, len(resp.Client), len(resp.Server))
		}
		if len(resp.Client) >= numStamps {
			off, err = ComputeOffset(*resp)
			if err != nil {
				return 0, err
			}
			s.l.Debug("clock synced", log.Int64("offset", off), log.Int("rounds", round))
			return off, nil
		}
		data = model.TimeSyncData{
			Client: append(resp.Client, s.now()),
			Server: resp.Server,
		}
	}
}

func (s *Service) roundTrip(ctx context.Context, data model.TimeSyncData) (
	*model.TimeSyncData, error,
) {
	if s.rtTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.rtTimeout)
		defer cancel()
	}
	resp, err := s.ex.Exchange(ctx, data)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrInvalidResponse
	}
	return resp, nil
}

// ComputeOffset evaluates four client and four server stamps.
//
//	rtt1 = ((c1-c0)+(s1-s0))/4, offset1 = c1-(s1-rtt1)
//	rtt2 = ((c3-c2)+(s3-s2))/4, offset2 = c2-(s2-rtt2)
//	offset = round((offset1+offset2)/2)
func ComputeOffset(data model.TimeSyncData) (int64, error) {
	if len(data.Client) < numStamps || len(data.Server) < numStamps {
		return 0, fmt.Errorf("%w: need %d stamps, got %d client and %d server",
			ErrInvalidResponse, numStamps, len(data.Client), len(data.Server))
	}
	c := func(i int) float64 { return float64(data.Client[i]) }
	sv := func(i int) float64 { return float64(data.Server[i]) }

	rtt1 := (c(1) - c(0) + sv(1) - sv(0)) / 4
	offset1 := c(1) - (sv(1) - rtt1)
	rtt2 := (c(3) - c(2) + sv(3) - sv(2)) / 4
	offset2 := c(2) - (sv(2) - rtt2)

	// half up like Math.round, also for negative values
	return int64(math.Floor((offset1+offset2)/2 + 0.5)), nil
}
