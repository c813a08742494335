package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplefpvtimer/sftctl/pkg/model"
)

type msg struct {
	subject string
	data    string
}

type fakeConn struct {
	msgs    []msg
	err     error
	drained bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg{subject, string(data)})
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestNatsPublisher(t *testing.T) {
	conn := &fakeConn{}
	p := NewNatsPublisher(conn, WithSubjectPrefix("club"))

	require.NoError(t, p.PublishLap("anna", model.Lap{ID: 2, Duration: 300, AbsTime: 7, Rssi: 80}))
	require.NoError(t, p.PublishRaceStarted(time.UnixMilli(1000), []string{"anna", "bob"}))
	require.NoError(t, p.Close())

	require.Len(t, conn.msgs, 2)
	assert.Equal(t, "club.sft.lap", conn.msgs[0].subject)
	assert.JSONEq(t, `{"player":"anna","lap":{"id":2,"duration":300,"abs_time":7,"rssi":80}}`, conn.msgs[0].data)
	assert.Equal(t, "club.sft.race.started", conn.msgs[1].subject)
	assert.JSONEq(t, `{"starts_at":1000,"players":["anna","bob"]}`, conn.msgs[1].data)
	assert.True(t, conn.drained)
}

func TestNatsPublisherError(t *testing.T) {
	boom := errors.New("boom")
	p := NewNatsPublisher(&fakeConn{err: boom})
	err := p.PublishLap("anna", model.Lap{})
	assert.ErrorIs(t, err, boom)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishLap("x", model.Lap{}))
	assert.NoError(t, p.PublishRaceStarted(time.Now(), nil))
	assert.NoError(t, p.Close())
}

func TestNatsPublisherEmptyPrefix(t *testing.T) {
	conn := &fakeConn{}
	p := NewNatsPublisher(conn, WithSubjectPrefix(""))
	require.NoError(t, p.PublishLap("anna", model.Lap{ID: 1}))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "sft.lap", conn.msgs[0].subject)
}
