package broadcast

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/simplefpvtimer/sftctl/log"
)

// Server fans out every message of a source channel to all subscribers.
// Subscribers that do not receive within the send timeout miss the message.
type Server[T any] interface {
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

type server[T any] struct {
	name           string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	sendTimeout    time.Duration
	numRcv         atomic.Int64
	numSnd         atomic.Int64
	numSkip        atomic.Int64
	numListener    atomic.Int64
	l              *log.Logger
}

type Option[T any] func(*server[T])

func WithSendTimeout[T any](d time.Duration) Option[T] {
	return func(b *server[T]) {
		b.sendTimeout = d
	}
}

func WithLogger[T any](l *log.Logger) Option[T] {
	return func(b *server[T]) {
		b.l = l
	}
}

// New starts serving source. The server stops when Close is called or
// source is closed, closing all subscriber channels.
func New[T any](name string, source <-chan T, opts ...Option[T]) Server[T] {
	ctx, cancel := context.WithCancel(context.Background())
	b := &server[T]{
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		sendTimeout:    50 * time.Millisecond,
		l:              log.Default().Named("broadcast"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.setupMetrics()
	go b.serve()
	return b
}

// Subscribe returns a closed channel once the server is stopped.
func (b *server[T]) Subscribe() <-chan T {
	ch := make(chan T, 1)
	select {
	case b.addListener <- ch:
	case <-b.ctx.Done():
		close(ch)
	}
	return ch
}

func (b *server[T]) CancelSubscription(ch <-chan T) {
	select {
	case b.removeListener <- ch:
	case <-b.ctx.Done():
	}
}

func (b *server[T]) Close() {
	b.l.Info("closing broadcast server",
		log.String("name", b.name),
		log.Int64("rcv", b.numRcv.Load()),
		log.Int64("snd", b.numSnd.Load()),
		log.Int64("skip", b.numSkip.Load()))
	b.cancel()
}

func (b *server[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("sft.broadcast")
	attrs := metric.WithAttributes(attribute.String("name", b.name))
	for _, d := range []struct {
		name  string
		desc  string
		value *atomic.Int64
	}{
		{"sft.broadcast.rcv", "Number of received messages", &b.numRcv},
		{"sft.broadcast.snd", "Number of sent messages", &b.numSnd},
		{"sft.broadcast.skip", "Number of skipped messages", &b.numSkip},
		{"sft.broadcast.listener", "Number of listeners", &b.numListener},
	} {
		v := d.value
		if _, err := meter.Int64ObservableGauge(
			d.name,
			metric.WithDescription(d.desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(v.Load(), attrs)
				return nil
			})); err != nil {
			b.l.Error("failed to register metric",
				log.String("metric", d.name),
				log.ErrorField(err))
		}
	}
}

func (b *server[T]) serve() {
	defer func() {
		b.cancel()
		for _, listener := range b.listeners {
			close(listener)
		}
		b.listeners = nil
		b.numListener.Store(0)
	}()
	for {
		select {
		case <-b.ctx.Done():
			return
		case ch := <-b.addListener:
			b.listeners = append(b.listeners, ch)
			b.numListener.Store(int64(len(b.listeners)))
		case ch := <-b.removeListener:
			if i := slices.IndexFunc(b.listeners, func(l chan T) bool { return l == ch }); i >= 0 {
				close(b.listeners[i])
				b.listeners = slices.Delete(b.listeners, i, i+1)
				b.numListener.Store(int64(len(b.listeners)))
			}
		case msg, ok := <-b.source:
			if !ok {
				b.l.Debug("source closed", log.String("name", b.name))
				return
			}
			b.numRcv.Add(1)
			b.send(msg)
		}
	}
}

func (b *server[T]) send(msg T) {
	for _, listener := range b.listeners {
		select {
		case listener <- msg:
			b.numSnd.Add(1)
		default:
			t := time.NewTimer(b.sendTimeout)
			select {
			case listener <- msg:
				b.numSnd.Add(1)
			case <-t.C:
				b.numSkip.Add(1)
			}
			t.Stop()
		}
	}
}
