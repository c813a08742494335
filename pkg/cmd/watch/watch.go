package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/simplefpvtimer/sftctl/log"
	"github.com/simplefpvtimer/sftctl/pkg/cmd/clocksync"
	"github.com/simplefpvtimer/sftctl/pkg/cmd/cmdutil"
	"github.com/simplefpvtimer/sftctl/pkg/cmd/rank"
	"github.com/simplefpvtimer/sftctl/pkg/config"
	"github.com/simplefpvtimer/sftctl/pkg/ctf"
	"github.com/simplefpvtimer/sftctl/pkg/device"
	"github.com/simplefpvtimer/sftctl/pkg/feed"
	"github.com/simplefpvtimer/sftctl/pkg/model"
	"github.com/simplefpvtimer/sftctl/pkg/ranking"
	"github.com/simplefpvtimer/sftctl/pkg/rssi"
	"github.com/simplefpvtimer/sftctl/pkg/timesync"
	"github.com/simplefpvtimer/sftctl/pkg/utils"
	"github.com/simplefpvtimer/sftctl/pkg/utils/cache"
	"github.com/simplefpvtimer/sftctl/pkg/utils/cache/loadercache"
)

var mode = ranking.DefaultMode

func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "follows the live feed of the device",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.Setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			w := newWatcher(cmdutil.DeviceClient(), clocksync.NewService(), cmd.OutOrStdout())
			return w.run(ctx)
		},
	}
	rank.AddModeFlag(cmd, &mode)
	clocksync.AddSyncFlags(cmd)
	cmd.Flags().DurationVar(&config.ReconnectDelay,
		"reconnect-delay",
		time.Second,
		"delay before reconnecting the feed")
	cmd.Flags().BoolVar(&config.ShowRssi,
		"rssi",
		false,
		"print signal summaries")
	cmd.Flags().DurationVar(&config.RssiHistory,
		"rssi-history",
		10*time.Second,
		"how long signal samples are kept")
	cmd.Flags().DurationVar(&config.SettingsTTL,
		"settings-ttl",
		time.Minute,
		"how long the device settings are cached")
	return cmd
}

type watcher struct {
	client *device.Client
	ts     *timesync.Service
	cfg    cache.Cache[string, model.Config]
	store  *rssi.Store
	mu     sync.Mutex
	out    io.Writer
	l      *log.Logger
}

const configKey = "config"

func newWatcher(client *device.Client, ts *timesync.Service, out io.Writer) *watcher {
	return &watcher{
		client: client,
		ts:     ts,
		cfg: loadercache.New(
			loadercache.WithExpiration[string, model.Config](config.SettingsTTL),
			loadercache.WithLoader[string, model.Config](func(ctx context.Context, _ string) (*model.Config, error) {
				cfg, err := client.Config(ctx)
				if err != nil {
					return nil, err
				}
				return &cfg, nil
			})),
		store: rssi.NewStore(),
		out:   out,
		l:     log.Default().Named("watch"),
	}
}

func (w *watcher) run(ctx context.Context) error {
	url, err := utils.WebsocketURL(w.client.BaseURL(), "/ws/dashboard")
	if err != nil {
		return err
	}
	disp := feed.NewDispatcher(w.ts)
	disp.OnPlayers(func(p []model.Player) { w.onPlayers(p) })
	disp.OnCtf(func(c model.Ctf) { w.onCtf(ctx, c) })
	if config.ShowRssi {
		disp.OnRssi(func(ev model.RssiEvent) { w.onRssi(ctx, ev) })
	}
	c := feed.NewClient(url, disp,
		feed.WithReconnectDelay(config.ReconnectDelay),
		feed.WithOnConnect(func(ctx context.Context) {
			// the device may have rebooted, its clock is unknown again
			w.cfg.InvalidateAll()
			if _, err := w.ts.Resync(ctx); err != nil {
				w.l.Warn("clock sync failed", log.ErrorField(err))
			}
		}))
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (w *watcher) onPlayers(players []model.Player) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "\n%s\n", time.Now().Format(time.TimeOnly))
	if err := cmdutil.PrintRanking(w.out, ranking.Rank(players, mode), mode); err != nil {
		w.l.Warn("output failed", log.ErrorField(err))
	}
}

func (w *watcher) onCtf(ctx context.Context, c model.Ctf) {
	cfg := w.config(ctx)
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "\n%s\n", time.Now().Format(time.TimeOnly))
	if err := cmdutil.PrintStandings(w.out, ctf.Score(c), cfg); err != nil {
		w.l.Warn("output failed", log.ErrorField(err))
	}
}

func (w *watcher) onRssi(ctx context.Context, ev model.RssiEvent) {
	w.store.Apply(ev, config.RssiHistory, time.Now())
	cfg := w.config(ctx)
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := cmdutil.PrintRssi(w.out, w.store.Summaries(), cfg); err != nil {
		w.l.Warn("output failed", log.ErrorField(err))
	}
}

// config is nil if the device settings are not available.
func (w *watcher) config(ctx context.Context) *model.Config {
	cfg, err := w.cfg.Get(ctx, configKey)
	if err != nil {
		w.l.Debug("no device config", log.ErrorField(err))
		return nil
	}
	return cfg
}
