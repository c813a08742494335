package clocksync

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplefpvtimer/sftctl/pkg/config"
	"github.com/simplefpvtimer/sftctl/pkg/ctrl"
)

func TestRunSync(t *testing.T) {
	// a controller running one hour behind
	clock := clockwork.NewFakeClockAt(time.Now().Add(-time.Hour))
	srv := ctrl.New(ctrl.WithClock(clock))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	config.DeviceURL = ts.URL
	config.SyncTimeout = time.Second

	off := Offset(context.Background(), NewService())
	assert.InDelta(t, time.Hour.Milliseconds(), off, 1000)

	var buf bytes.Buffer
	require.NoError(t, runSync(context.Background(), &buf))
	assert.Contains(t, buf.String(), "offset 36")
}

func TestOffsetFallback(t *testing.T) {
	config.DeviceURL = "http://127.0.0.1:1"
	config.SyncTimeout = 100 * time.Millisecond
	assert.Equal(t, int64(0), Offset(context.Background(), NewService()))
}
