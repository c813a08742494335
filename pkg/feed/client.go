package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/simplefpvtimer/sftctl/log"
	"github.com/simplefpvtimer/sftctl/pkg/model"
)

const helloMsg = "Hello, server!"

type ClientOption func(*Client)

// WithReconnectDelay sets the pause between a lost connection and the next
// dial.
func WithReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.delay = d
	}
}

func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) {
		c.clock = clock
	}
}

func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = d
	}
}

func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) {
		c.l = l
	}
}

// WithOnConnect registers a callback invoked after every successful dial,
// before messages are read.
func WithOnConnect(f func(ctx context.Context)) ClientOption {
	return func(c *Client) {
		c.onConnect = f
	}
}

// Client keeps a websocket connection to the feed open until its context is
// done.
type Client struct {
	url       string
	disp      *Dispatcher
	delay     time.Duration
	clock     clockwork.Clock
	dialer    *websocket.Dialer
	onConnect func(ctx context.Context)
	l         *log.Logger
}

func NewClient(url string, disp *Dispatcher, opts ...ClientOption) *Client {
	c := &Client{
		url:    url,
		disp:   disp,
		delay:  time.Second,
		clock:  clockwork.NewRealClock(),
		dialer: websocket.DefaultDialer,
		l:      log.Default().Named("feed"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects, reads and reconnects until ctx is done. It returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.l.Info("feed disconnected",
			log.String("url", c.url),
			log.ErrorField(err),
			log.Duration("retry", c.delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(c.delay):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return err
	}
	defer conn.Close()
	c.l.Debug("feed connected", log.String("url", c.url))

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	hello, _ := json.Marshal(model.HelloEvent{Type: model.EventHello, Msg: helloMsg})
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		return err
	}
	if c.onConnect != nil {
		c.onConnect(ctx)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("closed by peer")
			}
			return err
		}
		if err := c.disp.Dispatch(msg); err != nil {
			c.l.Warn("skipping feed message", log.ErrorField(err))
		}
	}
}
