// Package ctrl implements the controller timer nodes report to and
// dashboards read from.
package ctrl

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/simplefpvtimer/sftctl/log"
	"github.com/simplefpvtimer/sftctl/pkg/ctf"
	"github.com/simplefpvtimer/sftctl/pkg/device"
	"github.com/simplefpvtimer/sftctl/pkg/events"
	"github.com/simplefpvtimer/sftctl/pkg/model"
	"github.com/simplefpvtimer/sftctl/pkg/race"
	"github.com/simplefpvtimer/sftctl/pkg/storage"
	"github.com/simplefpvtimer/sftctl/pkg/utils"
	"github.com/simplefpvtimer/sftctl/pkg/utils/broadcast"
)

// NodeClient is the part of the device API the controller pushes to.
type NodeClient interface {
	SaveSettings(ctx context.Context, flat map[string]any) (map[string]any, error)
	ClearLaps(ctx context.Context, offset time.Duration) error
	StartNodeCtf(ctx context.Context, remaining time.Duration) error
	StopCtf(ctx context.Context) error
}

type Option func(*Server)

func WithSettingsFile(path string) Option {
	return func(s *Server) {
		s.settings = newSettings(path)
	}
}

func WithPushInterval(d time.Duration) Option {
	return func(s *Server) {
		s.pushInterval = d
	}
}

// WithDefaultOffset is the race start delay used when clear_laps has no body.
func WithDefaultOffset(d time.Duration) Option {
	return func(s *Server) {
		s.defaultOffset = d
	}
}

func WithArchive(a *storage.Archive) Option {
	return func(s *Server) {
		s.archive = a
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		s.publisher = p
	}
}

// WithNodeClient replaces the device client used for pushes to nodes.
func WithNodeClient(f func(ipv4 string) NodeClient) Option {
	return func(s *Server) {
		s.nodeClient = f
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// WithStaticDir serves the dashboard files of dir below /.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		s.wwwDir = dir
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.l = l
	}
}

type Server struct {
	settings      *settings
	pushInterval  time.Duration
	pushTimeout   time.Duration
	defaultOffset time.Duration
	archive       *storage.Archive
	publisher     events.Publisher
	nodeClient    func(ipv4 string) NodeClient
	clock         clockwork.Clock
	wwwDir        string
	l             *log.Logger

	race *race.Race
	game *ctf.Game

	nodesMu sync.RWMutex
	nodes   []model.Node

	source chan []byte
	bcast  broadcast.Server[[]byte]
	pushes sync.WaitGroup
}

func New(opts ...Option) *Server {
	s := &Server{
		settings:      newSettings(""),
		pushInterval:  time.Second,
		pushTimeout:   5 * time.Second,
		defaultOffset: 30 * time.Second,
		publisher:     events.NoopPublisher{},
		nodeClient: func(ipv4 string) NodeClient {
			return device.NewClient(utils.HTTPURL(ipv4))
		},
		clock:  clockwork.NewRealClock(),
		l:      log.Default().Named("ctrl"),
		nodes:  []model.Node{},
		source: make(chan []byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.race = race.New(race.WithClock(s.clock))
	s.game = ctf.NewGame(ctf.WithClock(s.clock))
	s.bcast = broadcast.New("ws", s.source,
		broadcast.WithLogger[[]byte](s.l.Named("broadcast")))

	if ok, err := s.settings.load(); err != nil {
		s.l.Warn("could not load settings, using defaults", log.ErrorField(err))
	} else if ok {
		s.l.Info("settings loaded", log.String("file", s.settings.path))
	}
	s.game.OnConfigChange(s.settings.config())
	return s
}

// Handler returns the http handler of the controller API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/settings", s.getSettings)
		r.Post("/settings", s.postSettings)
		r.With(s.requireMode(model.GameModeRace)).Post("/player/lap", s.postLap)
		r.Post("/player/connect", s.postConnect)
		r.Get("/nodes", s.getNodes)
		r.Post("/time-sync", s.postTimeSync)
		r.With(s.requireMode(model.GameModeRace)).Post("/clear_laps", s.postClearLaps)
		r.Route("/ctf", func(r chi.Router) {
			r.Use(s.requireMode(model.GameModeCtf))
			r.Post("/update", s.postCtfUpdate)
			r.Post("/start", s.postCtfStart)
			r.Get("/stop", s.getCtfStop)
		})
		r.Get("/rssi/update", s.getRssiUpdate)
		r.Post("/rssi/update", s.postRssiUpdate)
	})
	r.Get("/ws/*", s.serveWs)
	if s.wwwDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.wwwDir)))
	}
	return newCORS().Handler(r)
}

// ListenAndServe runs the http server and the push loop until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 3 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.l.Info("controller listening", log.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err := g.Wait()
	s.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Run sends the current state to all websocket connections every push
// interval until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	t := s.clock.NewTicker(s.pushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Chan():
			msg, ok := s.stateMessage()
			if !ok {
				continue
			}
			select {
			case s.source <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Close stops the websocket fan-out and waits for pending node pushes.
func (s *Server) Close() {
	s.bcast.Close()
	s.pushes.Wait()
}

// Players returns the current race state.
func (s *Server) Players() []model.Player {
	return s.race.Players()
}

func (s *Server) Nodes() []model.Node {
	s.nodesMu.RLock()
	defer s.nodesMu.RUnlock()
	return slices.Clone(s.nodes)
}

// addNode registers or refreshes a node. New race players and new CTF nodes
// receive their receiver settings.
func (s *Server) addNode(ipv4, name, player string) {
	s.nodesMu.Lock()
	i := slices.IndexFunc(s.nodes, func(n model.Node) bool { return n.IPAddr == ipv4 })
	if i < 0 {
		s.nodes = append(s.nodes, model.Node{IPAddr: ipv4, Name: name, LastSeen: s.now()})
	} else {
		s.nodes[i].Name = name
		s.nodes[i].LastSeen = s.now()
	}
	s.nodesMu.Unlock()

	switch s.settings.gameMode() {
	case model.GameModeCtf:
		if s.game.AddNode(ipv4, name) {
			s.sendCtfSettings(ipv4)
		}
	case model.GameModeRace:
		if s.race.AddPlayer(ipv4, player) {
			s.updateNodes()
		}
	case model.GameModeSpectrum:
	}
}

func (s *Server) touchNode(ipv4 string) {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()
	if i := slices.IndexFunc(s.nodes, func(n model.Node) bool { return n.IPAddr == ipv4 }); i >= 0 {
		s.nodes[i].LastSeen = s.now()
	}
}

// updateNodes sends every node its settings. In race mode node n gets the
// receiver settings of slot n.
func (s *Server) updateNodes() {
	ctfMode := s.settings.gameMode() == model.GameModeCtf
	for idx, n := range s.Nodes() {
		if ctfMode {
			s.sendCtfSettings(n.IPAddr)
		} else {
			s.sendRaceSettings(n.IPAddr, idx)
		}
	}
}

func (s *Server) sendCtfSettings(ipv4 string) {
	cfg := ctfNodeSettings(s.settings.values())
	s.push(ipv4, "settings", func(ctx context.Context, c NodeClient) error {
		_, err := c.SaveSettings(ctx, cfg)
		return err
	})
}

func (s *Server) sendRaceSettings(ipv4 string, idx int) {
	cfg := raceNodeSettings(s.settings.values(), idx)
	s.push(ipv4, "settings", func(ctx context.Context, c NodeClient) error {
		_, err := c.SaveSettings(ctx, cfg)
		return err
	})
}

// push runs fn in the background. Failures are logged only.
func (s *Server) push(ipv4, what string, fn func(context.Context, NodeClient) error) {
	s.pushes.Add(1)
	go func() {
		defer s.pushes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.pushTimeout)
		defer cancel()
		err := fn(ctx, s.nodeClient(ipv4))
		if err != nil {
			s.l.Warn("push to node failed",
				log.String("node", ipv4),
				log.String("what", what),
				log.ErrorField(err))
			return
		}
		s.l.Debug("pushed to node", log.String("node", ipv4), log.String("what", what))
	}()
}

func (s *Server) now() int64 {
	return s.clock.Now().UnixMilli()
}

func newCORS() *cors.Cors {
	// dashboards are served from anywhere, nodes do not send an origin
	return cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedHeaders: []string{"*"},
		MaxAge:         7200,
	})
}
