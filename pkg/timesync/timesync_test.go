//nolint:funlen // ok for tests
package timesync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplefpvtimer/sftctl/pkg/model"
)

// device simulates a timer whose clock runs offset ms behind the local clock
// with a symmetric one-way latency.
type device struct {
	clock   *clockwork.FakeClock
	offset  int64
	latency time.Duration
	calls   atomic.Int32
	fail    func(call int32) error
}

func (d *device) Exchange(_ context.Context, data model.TimeSyncData) (*model.TimeSyncData, error) {
	call := d.calls.Add(1)
	if d.fail != nil {
		if err := d.fail(call); err != nil {
			return nil, err
		}
	}
	d.clock.Advance(d.latency)
	server := d.clock.Now().UnixMilli() - d.offset
	d.clock.Advance(d.latency)
	return &model.TimeSyncData{
		Client: append([]int64{}, data.Client...),
		Server: append(append([]int64{}, data.Server...), server),
	}, nil
}

func TestComputeOffset(t *testing.T) {
	tests := []struct {
		name    string
		data    model.TimeSyncData
		want    int64
		wantErr error
	}{
		{
			name: "constant offset",
			data: model.TimeSyncData{Client: []int64{0, 10, 20, 30}, Server: []int64{100, 110, 120, 130}},
			want: -95,
		},
		{
			name: "round half up",
			data: model.TimeSyncData{Client: []int64{0, 2, 4, 6}, Server: []int64{0, 2, 3, 5}},
			want: 2,
		},
		{
			name: "round negative half up",
			data: model.TimeSyncData{Client: []int64{0, 2, 4, 6}, Server: []int64{3, 5, 6, 8}},
			want: -1,
		},
		{
			name:    "too few stamps",
			data:    model.TimeSyncData{Client: []int64{0, 1, 2}, Server: []int64{0, 1, 2}},
			wantErr: ErrInvalidResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeOffset(tt.data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSync(t *testing.T) {
	for _, off := range []int64{0, 12345, -5000} {
		clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
		dev := &device{clock: clock, offset: off, latency: 7 * time.Millisecond}
		s := New(dev, WithClock(clock))

		assert.False(t, s.Synced())
		got, err := s.Sync(context.Background())
		require.NoError(t, err)
		assert.Equal(t, off, got)
		assert.Equal(t, off, s.Offset())
		assert.True(t, s.Synced())
		assert.Equal(t, int32(4), dev.calls.Load())

		// cached
		got, err = s.Sync(context.Background())
		require.NoError(t, err)
		assert.Equal(t, off, got)
		assert.Equal(t, int32(4), dev.calls.Load())

		assert.Equal(t, int64(1000)+off, s.ToClient(1000))
		assert.Equal(t, int64(1000), s.ToDevice(1000+off))
	}
}

func TestResync(t *testing.T) {
	clock := clockwork.NewFakeClock()
	dev := &device{clock: clock, offset: 100, latency: time.Millisecond}
	s := New(dev, WithClock(clock))
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	dev.offset = 250
	got, err := s.Resync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(250), got)
	assert.Equal(t, int32(8), dev.calls.Load())

	s.Reset()
	assert.False(t, s.Synced())
	assert.Equal(t, int64(0), s.Offset())
}

func TestSyncErrors(t *testing.T) {
	boom := errors.New("boom")
	clock := clockwork.NewFakeClock()
	dev := &device{clock: clock, latency: time.Millisecond, fail: func(call int32) error {
		if call == 3 {
			return boom
		}
		return nil
	}}
	s := New(dev, WithClock(clock))
	_, err := s.Sync(context.Background())
	require.ErrorIs(t, err, boom)
	assert.False(t, s.Synced())
	assert.Equal(t, int32(3), dev.calls.Load())

	// the caller retries
	dev.fail = nil
	got, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
	assert.True(t, s.Synced())
}

func TestSyncInvalidResponse(t *testing.T) {
	tests := []struct {
		name string
		resp *model.TimeSyncData
	}{
		{"nil", nil},
		{"no client", &model.TimeSyncData{Server: []int64{1}}},
		{"no server", &model.TimeSyncData{Client: []int64{1}}},
		{"length mismatch", &model.TimeSyncData{Client: []int64{1, 2}, Server: []int64{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(ExchangeFunc(func(context.Context, model.TimeSyncData) (*model.TimeSyncData, error) {
				return tt.resp, nil
			}))
			_, err := s.Sync(context.Background())
			require.ErrorIs(t, err, ErrInvalidResponse)
			assert.False(t, s.Synced())
		})
	}
}

func TestSyncRoundTripTimeout(t *testing.T) {
	s := New(ExchangeFunc(func(ctx context.Context, _ model.TimeSyncData) (*model.TimeSyncData, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), WithRoundTripTimeout(20*time.Millisecond))
	_, err := s.Sync(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.Synced())
}

func TestSyncConcurrentCallsShareExchange(t *testing.T) {
	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	dev := &device{clock: clock, offset: 42, latency: time.Millisecond}
	var first sync.Once
	s := New(ExchangeFunc(func(ctx context.Context, data model.TimeSyncData) (*model.TimeSyncData, error) {
		first.Do(func() { <-release })
		return dev.Exchange(ctx, data)
	}), WithClock(clock))

	const callers = 5
	var wg sync.WaitGroup
	results := make([]int64, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			off, err := s.Sync(context.Background())
			assert.NoError(t, err)
			results[i] = off
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(4), dev.calls.Load())
	for _, r := range results {
		assert.Equal(t, int64(42), r)
	}
}

func TestSyncCanceledCallerDoesNotAbortOthers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	started := make(chan struct{})
	dev := &device{clock: clock, offset: -7, latency: time.Millisecond}
	var first sync.Once
	s := New(ExchangeFunc(func(ctx context.Context, data model.TimeSyncData) (*model.TimeSyncData, error) {
		first.Do(func() {
			close(started)
			<-release
		})
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return dev.Exchange(ctx, data)
	}), WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Sync(ctx)
		firstErr <- err
	}()
	<-started

	second := make(chan int64, 1)
	go func() {
		off, err := s.Sync(context.Background())
		assert.NoError(t, err)
		second <- off
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, int64(-7), <-second)
	assert.True(t, s.Synced())
}
