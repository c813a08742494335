//nolint:funlen // ok for tests
package ctrl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplefpvtimer/sftctl/pkg/device"
	"github.com/simplefpvtimer/sftctl/pkg/model"
	"github.com/simplefpvtimer/sftctl/pkg/storage"
	"github.com/simplefpvtimer/sftctl/pkg/utils"
)

type push struct {
	Node     string
	What     string
	Settings map[string]any
	Duration time.Duration
}

type pushRecorder struct {
	mu    sync.Mutex
	calls []push
}

func (p *pushRecorder) add(c push) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
}

func (p *pushRecorder) take() []push {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := p.calls
	p.calls = nil
	return ret
}

func (p *pushRecorder) client(ipv4 string) NodeClient {
	return &fakeNode{ipv4: ipv4, rec: p}
}

type fakeNode struct {
	ipv4 string
	rec  *pushRecorder
}

func (f *fakeNode) SaveSettings(_ context.Context, flat map[string]any) (map[string]any, error) {
	f.rec.add(push{Node: f.ipv4, What: "settings", Settings: flat})
	return flat, nil
}

func (f *fakeNode) ClearLaps(_ context.Context, offset time.Duration) error {
	f.rec.add(push{Node: f.ipv4, What: "clear_laps", Duration: offset})
	return nil
}

func (f *fakeNode) StartNodeCtf(_ context.Context, remaining time.Duration) error {
	f.rec.add(push{Node: f.ipv4, What: "ctf start", Duration: remaining})
	return nil
}

func (f *fakeNode) StopCtf(context.Context) error {
	f.rec.add(push{Node: f.ipv4, What: "ctf stop"})
	return nil
}

type lapRecord struct {
	Player string
	Lap    model.Lap
}

type fakePublisher struct {
	mu      sync.Mutex
	laps    []lapRecord
	started []time.Time
}

func (p *fakePublisher) PublishLap(player string, lap model.Lap) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.laps = append(p.laps, lapRecord{player, lap})
	return nil
}

func (p *fakePublisher) PublishRaceStarted(startsAt time.Time, _ []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, startsAt)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fixture struct {
	srv   *Server
	ts    *httptest.Server
	api   *device.Client
	clock *clockwork.FakeClock
	rec   *pushRecorder
	pub   *fakePublisher
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		clock: clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000)),
		rec:   &pushRecorder{},
		pub:   &fakePublisher{},
	}
	opts = append([]Option{
		WithClock(f.clock),
		WithNodeClient(f.rec.client),
		WithPublisher(f.pub),
	}, opts...)
	f.srv = New(opts...)
	f.ts = httptest.NewServer(f.srv.Handler())
	f.api = device.NewClient(f.ts.URL)
	t.Cleanup(func() {
		f.ts.Close()
		f.srv.Close()
	})
	return f
}

// settle waits for the background pushes and returns them.
func (f *fixture) settle() []push {
	f.srv.pushes.Wait()
	return f.rec.take()
}

func (f *fixture) setMode(t *testing.T, mode model.GameMode, extra map[string]any) {
	t.Helper()
	values := map[string]any{"game_mode": int(mode)}
	for k, v := range extra {
		values[k] = v
	}
	_, err := f.api.SaveSettings(context.Background(), values)
	require.NoError(t, err)
	f.settle()
}

func TestTimeSync(t *testing.T) {
	f := setup(t)
	got, err := f.api.Exchange(context.Background(), model.TimeSyncData{Client: []int64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.Client)
	assert.Equal(t, []int64{1_700_000_000_000}, got.Server)

	got, err = f.api.Exchange(context.Background(), model.TimeSyncData{
		Client: []int64{1, 2, 3}, Server: []int64{10},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 1_700_000_000_000}, got.Server)
}

func TestSettings(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.json")
	f := setup(t, WithSettingsFile(file))
	ctx := context.Background()

	cfg, err := f.api.Config(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(model.DefaultConfig(), cfg); diff != "" {
		t.Errorf("Config() mismatch (-want +got):\n%s", diff)
	}

	ret, err := f.api.SaveSettings(ctx, map[string]any{
		"rssi[1].freq": "5800",
		"rssi[1].name": "bob",
		"led_num":      12,
	})
	require.NoError(t, err)
	assert.InDelta(t, 5800, ret["rssi[1].freq"], 0)
	assert.Equal(t, "bob", ret["rssi[1].name"])

	cfg, err = f.api.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5800, cfg.Rssi[1].Freq)
	assert.Equal(t, "bob", cfg.Rssi[1].Name)
	assert.Equal(t, 12, cfg.LedNum)

	_, err = os.Stat(file)
	require.NoError(t, err)
	reloaded := New(WithSettingsFile(file), WithNodeClient(f.rec.client))
	defer reloaded.Close()
	assert.Equal(t, cfg, reloaded.settings.config())
}

func TestSettingsUnknownKey(t *testing.T) {
	f := setup(t)
	_, err := f.api.SaveSettings(context.Background(), map[string]any{
		"led_num":  3,
		"no_such":  1,
		"rssi[9].": 2,
	})
	var rejected *device.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, msgInvalidSetting, rejected.Msg)

	cfg, err := f.api.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.LedNum, "no partial update")
}

func TestSettingsWriteFails(t *testing.T) {
	file := filepath.Join(t.TempDir(), "missing", "settings.json")
	f := setup(t, WithSettingsFile(file))
	ctx := context.Background()
	require.NoError(t, f.api.Connect(ctx, model.NodeConnect{IPv4: "10.0.0.1", Name: "n1", Player: "anna"}))
	f.settle()

	_, err := f.api.SaveSettings(ctx, map[string]any{"led_num": 3, "game_mode": 1})
	var rejected *device.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, msgSaveFailed, rejected.Msg)
	assert.Empty(t, f.settle(), "nodes not updated")

	cfg, err := f.api.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.LedNum)
	assert.Equal(t, model.GameModeRace, cfg.GameMode)
	assert.Equal(t, model.GameModeRace, f.srv.settings.gameMode())
}

func TestSettingsPushedToNodes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	require.NoError(t, f.api.Connect(ctx, model.NodeConnect{IPv4: "10.0.0.1", Name: "n1", Player: "anna"}))
	f.settle()
	require.NoError(t, f.api.Connect(ctx, model.NodeConnect{IPv4: "10.0.0.2", Name: "n2", Player: "bob"}))
	f.settle()

	_, err := f.api.SaveSettings(ctx, map[string]any{"rssi[1].freq": 5800})
	require.NoError(t, err)
	calls := f.settle()
	require.Len(t, calls, 2)
	byNode := map[string]map[string]any{}
	for _, c := range calls {
		byNode[c.Node] = c.Settings
	}
	assert.Equal(t, 5917, byNode["10.0.0.1"]["rssi[0].freq"])
	assert.Equal(t, 5800, byNode["10.0.0.2"]["rssi[0].freq"])
	assert.NotContains(t, byNode["10.0.0.2"], "rssi[1].freq")
	assert.Equal(t, 0, byNode["10.0.0.2"]["game_mode"])
}

func TestConnectAndLaps(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.api.Connect(ctx, model.NodeConnect{IPv4: "10.0.0.1", Name: "n1", Player: "anna"}))
	calls := f.settle()
	require.Len(t, calls, 1)
	assert.Equal(t, "settings", calls[0].What)

	// connecting again does not add a second player
	require.NoError(t, f.api.Connect(ctx, model.NodeConnect{IPv4: "10.0.0.1", Name: "renamed", Player: "anna"}))
	assert.Empty(t, f.settle())

	abs := int64(1234)
	require.NoError(t, f.api.ReportLap(ctx, model.LapReport{
		IPv4: "10.0.0.1", Player: "anna", ID: 1, Duration: 4000, Rssi: 90, AbsTime: &abs,
	}))
	// laps of unknown nodes register the node
	require.NoError(t, f.api.ReportLap(ctx, model.LapReport{
		IPv4: "10.0.0.2", Player: "bob", ID: 1, Duration: 5000,
	}))
	f.settle()

	players, err := f.api.Players(ctx)
	require.NoError(t, err)
	want := []model.Player{
		{Name: "anna", IPAddr: "10.0.0.1", Laps: []model.Lap{{ID: 1, Duration: 4000, AbsTime: 1234, Rssi: 90}}},
		{Name: "bob", IPAddr: "10.0.0.2", Laps: []model.Lap{{ID: 1, Duration: 5000, AbsTime: 1_700_000_000_000}}},
	}
	if diff := cmp.Diff(want, players); diff != "" {
		t.Errorf("Players() mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, f.pub.laps, 2)
	assert.Equal(t, "bob", f.pub.laps[1].Player)

	nodes, err := f.api.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "renamed", nodes[0].Name)
	assert.Equal(t, "bob", nodes[1].Name)
}

func TestConnectInvalid(t *testing.T) {
	f := setup(t)
	err := f.api.Connect(context.Background(), model.NodeConnect{})
	var rejected *device.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, msgAddNodeFailed, rejected.Msg)
}

func TestClearLaps(t *testing.T) {
	db, err := storage.Open("")
	require.NoError(t, err)
	defer db.Close()
	archive := storage.NewArchive(db)
	f := setup(t, WithArchive(archive))
	ctx := context.Background()

	require.NoError(t, f.api.Connect(ctx, model.NodeConnect{IPv4: "10.0.0.1", Name: "n1", Player: "anna"}))
	require.NoError(t, f.api.ReportLap(ctx, model.LapReport{IPv4: "10.0.0.1", Player: "anna", ID: 1, Duration: 4000}))
	f.settle()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.ts.URL+"/api/v1/clear_laps", http.NoBody)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	calls := f.settle()
	assert.Equal(t, []push{{Node: "10.0.0.1", What: "clear_laps", Duration: 30 * time.Second}}, calls)
	players, err := f.api.Players(ctx)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Empty(t, players[0].Laps)
	assert.Equal(t, []time.Time{f.clock.Now().Add(30 * time.Second)}, f.pub.started)

	races, err := archive.ListRaces()
	require.NoError(t, err)
	require.Len(t, races, 1)
	assert.Equal(t, 1, races[0].NumLaps())

	require.NoError(t, f.api.ClearLaps(ctx, 5*time.Second))
	assert.Equal(t, []push{{Node: "10.0.0.1", What: "clear_laps", Duration: 5 * time.Second}}, f.settle())
	races, err = archive.ListRaces()
	require.NoError(t, err)
	assert.Len(t, races, 1, "empty race is not archived")
}

func TestModeGuards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	var rejected *device.RejectedError

	err := f.api.StartCtf(ctx, time.Minute)
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Expect CTF mode", rejected.Msg)
	require.ErrorAs(t, f.api.StopCtf(ctx), &rejected)

	f.setMode(t, model.GameModeCtf, nil)
	err = f.api.ReportLap(ctx, model.LapReport{IPv4: "10.0.0.1", ID: 1})
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Expect RACE mode", rejected.Msg)
	require.ErrorAs(t, f.api.ClearLaps(ctx, time.Second), &rejected)
}

func TestCtf(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.setMode(t, model.GameModeCtf, map[string]any{
		"rssi[0].name": "red",
		"rssi[1].name": "blue",
		"rssi[1].freq": 5800,
	})

	update := model.CtfUpdate{Type: "ctf", Ctf: model.Ctf{
		TeamNames: []string{"red"},
		Nodes:     []model.CtfNode{{Name: "tower", IPv4: "10.0.0.5", Current: 1, CapturedMs: []int64{0, 100}}},
	}}
	var rejected *device.RejectedError

	err := f.api.CtfUpdate(ctx, update)
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, msgConfigInvalid, rejected.Msg)
	calls := f.settle()
	require.Len(t, calls, 1)
	assert.Equal(t, "blue", calls[0].Settings["rssi[1].name"])
	assert.Equal(t, 1, calls[0].Settings["game_mode"])

	update.Ctf.TeamNames = []string{"red", "blue"}
	err = f.api.CtfUpdate(ctx, update)
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, msgNodeNotFound, rejected.Msg)
	assert.Len(t, f.settle(), 1, "new node gets its settings")

	require.NoError(t, f.api.CtfUpdate(ctx, update))
	assert.Equal(t, model.NoTeam, f.srv.game.Snapshot().Nodes[0].Current, "not running")

	require.NoError(t, f.api.StartCtf(ctx, time.Minute))
	assert.Equal(t, []push{{Node: "10.0.0.5", What: "ctf start", Duration: time.Minute}}, f.settle())

	require.NoError(t, f.api.CtfUpdate(ctx, update))
	snap := f.srv.game.Snapshot()
	assert.Equal(t, 1, snap.Nodes[0].Current)
	assert.Equal(t, int64(60_000), snap.TimeLeftMs)

	require.NoError(t, f.api.StopCtf(ctx))
	assert.Equal(t, []push{{Node: "10.0.0.5", What: "ctf stop"}}, f.settle())
	assert.False(t, f.srv.game.Running())
}

func TestRssiUpdate(t *testing.T) {
	f := setup(t)
	enabled, err := f.api.RssiUpdate(context.Background())
	require.NoError(t, err)
	assert.False(t, enabled)

	var rejected *device.RejectedError
	require.ErrorAs(t, f.api.SetRssiUpdate(context.Background(), true), &rejected)
	assert.Equal(t, msgRssiNotImpl, rejected.Msg)
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>sft</html>"), 0o600))
	f := setup(t, WithStaticDir(dir))

	resp, err := http.Get(f.ts.URL + "/index.html")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebsocketPush(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		//nolint:errcheck // ends with ctx
		f.srv.Run(ctx)
	}()
	require.NoError(t, f.api.Connect(ctx, model.NodeConnect{IPv4: "10.0.0.1", Name: "n1", Player: "anna"}))
	f.settle()

	url, err := utils.WebsocketURL(f.ts.URL, "/ws/dashboard")
	require.NoError(t, err)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	received := make(chan []byte, 10)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				close(received)
				return
			}
			select {
			case received <- data:
			default:
			}
		}
	}()

	var ev model.PlayersEvent
	require.Eventually(t, func() bool {
		f.clock.Advance(time.Second)
		select {
		case data := <-received:
			return json.Unmarshal(data, &ev) == nil
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.EventPlayers, ev.Type)
	require.Len(t, ev.Players, 1)
	assert.Equal(t, "anna", ev.Players[0].Name)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","msg":"Hello, server!"}`)))
	require.Eventually(t, func() bool {
		select {
		case data := <-received:
			return string(data) == `{"type":"hello","msg":"Hello, server!"}`
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}
