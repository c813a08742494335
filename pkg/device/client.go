// Package device talks to the HTTP API of a timer node or controller.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/simplefpvtimer/sftctl/log"
	"github.com/simplefpvtimer/sftctl/pkg/model"
)

const apiPrefix = "/api/v1/"

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithLogger(l *log.Logger) Option {
	return func(cl *Client) {
		cl.l = l
	}
}

type Client struct {
	baseURL string
	http    *http.Client
	l       *log.Logger
}

// NewClient creates a client for the device at baseURL, e.g.
// "http://192.168.4.1". A missing scheme defaults to http.
func NewClient(baseURL string, opts ...Option) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		l:       log.Default().Named("device"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Settings fetches the flat configuration and, on nodes, the current players.
func (c *Client) Settings(ctx context.Context) (*model.SettingsResponse, error) {
	var ret model.SettingsResponse
	if err := c.do(ctx, http.MethodGet, "settings", nil, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Client) Config(ctx context.Context) (model.Config, error) {
	s, err := c.Settings(ctx)
	if err != nil {
		return model.Config{}, err
	}
	cfg, err := model.ConfigFromFlat(s.Config)
	if err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Players returns the players reported with the settings, empty if the
// device does not report any.
func (c *Client) Players(ctx context.Context) ([]model.Player, error) {
	s, err := c.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if s.State == nil {
		return []model.Player{}, nil
	}
	return s.State.Players, nil
}

// SaveSettings posts (a subset of) the flat configuration.
func (c *Client) SaveSettings(ctx context.Context, flat map[string]any) (map[string]any, error) {
	var ret model.SettingsResponse
	if err := c.do(ctx, http.MethodPost, "settings", flat, &ret); err != nil {
		return nil, err
	}
	if ret.Status != "" && ret.Status != model.StatusOK {
		return nil, &RejectedError{Msg: ret.Msg}
	}
	return ret.Config, nil
}

// ClearLaps resets the laps, the race starts after offset.
func (c *Client) ClearLaps(ctx context.Context, offset time.Duration) error {
	return c.doStatus(ctx, http.MethodPost, "clear_laps", model.ClearLaps{Offset: offset.Milliseconds()})
}

func (c *Client) StartCtf(ctx context.Context, d time.Duration) error {
	return c.doStatus(ctx, http.MethodPost, "ctf/start", model.CtfStart{DurationMs: d.Milliseconds()})
}

// StartNodeCtf starts the CTF round on a single node with the remaining time.
func (c *Client) StartNodeCtf(ctx context.Context, remaining time.Duration) error {
	return c.doStatus(ctx, http.MethodPost, "ctf/start", model.CtfNodeStart{Duration: remaining.Milliseconds()})
}

func (c *Client) StopCtf(ctx context.Context) error {
	return c.doStatus(ctx, http.MethodGet, "ctf/stop", nil)
}

// CtfUpdate sends the state of a CTF node to the controller.
func (c *Client) CtfUpdate(ctx context.Context, update model.CtfUpdate) error {
	return c.doStatus(ctx, http.MethodPost, "ctf/update", update)
}

func (c *Client) Nodes(ctx context.Context) ([]model.Node, error) {
	var ret model.NodesResponse
	if err := c.do(ctx, http.MethodGet, "nodes", nil, &ret); err != nil {
		return nil, err
	}
	return ret.Nodes, nil
}

// Connect registers a node at the controller.
func (c *Client) Connect(ctx context.Context, req model.NodeConnect) error {
	return c.doStatus(ctx, http.MethodPost, "player/connect", req)
}

// ReportLap forwards a detected lap to the controller.
func (c *Client) ReportLap(ctx context.Context, lap model.LapReport) error {
	return c.doStatus(ctx, http.MethodPost, "player/lap", lap)
}

// Exchange performs one time-sync round trip.
func (c *Client) Exchange(ctx context.Context, data model.TimeSyncData) (*model.TimeSyncData, error) {
	var ret model.TimeSyncData
	if err := c.do(ctx, http.MethodPost, "time-sync", data, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Client) RssiUpdate(ctx context.Context) (bool, error) {
	var ret model.RssiUpdate
	if err := c.do(ctx, http.MethodGet, "rssi/update", nil, &ret); err != nil {
		return false, err
	}
	return ret.Enable, nil
}

func (c *Client) SetRssiUpdate(ctx context.Context, enable bool) error {
	return c.doStatus(ctx, http.MethodPost, "rssi/update", model.RssiUpdate{Enable: enable})
}

// doStatus expects a status document, an empty body counts as success.
func (c *Client) doStatus(ctx context.Context, method, path string, body any) error {
	var ret *model.StatusResponse
	if err := c.do(ctx, method, path, body, &ret); err != nil {
		return err
	}
	if ret != nil && ret.Status != "" && ret.Status != model.StatusOK {
		return &RejectedError{Msg: ret.Msg}
	}
	return nil
}

//nolint:whitespace // can't make both editor and linter happy
func (c *Client) do(
	ctx context.Context, method, path string, body, target any,
) error {
	url := c.baseURL + apiPrefix + path
	var reqBody io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.l.Debug("request done",
		log.String("method", method),
		log.String("url", url),
		log.Int("status", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, URL: url}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if target == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w from %s: %w", ErrDecode, url, err)
	}
	return nil
}
