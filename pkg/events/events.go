// Package events publishes race events to external consumers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/simplefpvtimer/sftctl/log"
	"github.com/simplefpvtimer/sftctl/pkg/model"
)

const (
	SubjectLap         = "sft.lap"
	SubjectRaceStarted = "sft.race.started"
)

type Publisher interface {
	PublishLap(player string, lap model.Lap) error
	PublishRaceStarted(startsAt time.Time, players []string) error
	Close() error
}

//nolint:tagliatelle // same keys as the device api
type LapEvent struct {
	Player string    `json:"player"`
	Lap    model.Lap `json:"lap"`
}

//nolint:tagliatelle // same keys as the device api
type RaceStartedEvent struct {
	StartsAt int64    `json:"starts_at"`
	Players  []string `json:"players"`
}

type NoopPublisher struct{}

func (NoopPublisher) PublishLap(string, model.Lap) error           { return nil }
func (NoopPublisher) PublishRaceStarted(time.Time, []string) error { return nil }
func (NoopPublisher) Close() error                                 { return nil }

// Conn is the part of *nats.Conn used by NatsPublisher.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type Option func(*NatsPublisher)

func WithLogger(l *log.Logger) Option {
	return func(p *NatsPublisher) {
		p.l = l
	}
}

// WithSubjectPrefix publishes to <prefix>.sft.lap etc.
func WithSubjectPrefix(prefix string) Option {
	return func(p *NatsPublisher) {
		if prefix != "" {
			p.prefix = prefix + "."
		}
	}
}

type NatsPublisher struct {
	conn   Conn
	prefix string
	l      *log.Logger
}

func NewNatsPublisher(conn Conn, opts ...Option) *NatsPublisher {
	p := &NatsPublisher{conn: conn, l: log.Default().Named("events")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect dials the NATS server at url.
func Connect(url string, opts ...Option) (*NatsPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("sftctl"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return NewNatsPublisher(conn, opts...), nil
}

func (p *NatsPublisher) PublishLap(player string, lap model.Lap) error {
	return p.publish(SubjectLap, LapEvent{Player: player, Lap: lap})
}

func (p *NatsPublisher) PublishRaceStarted(startsAt time.Time, players []string) error {
	return p.publish(SubjectRaceStarted, RaceStartedEvent{
		StartsAt: startsAt.UnixMilli(),
		Players:  players,
	})
}

func (p *NatsPublisher) Close() error {
	return p.conn.Drain()
}

func (p *NatsPublisher) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	subject = p.prefix + subject
	if err := p.conn.Publish(subject, data); err != nil {
		p.l.Warn("publish failed", log.String("subject", subject), log.ErrorField(err))
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.l.Debug("published", log.String("subject", subject))
	return nil
}
