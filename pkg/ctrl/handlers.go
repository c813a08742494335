package ctrl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/lo"

	"github.com/simplefpvtimer/sftctl/log"
	"github.com/simplefpvtimer/sftctl/pkg/ctf"
	"github.com/simplefpvtimer/sftctl/pkg/model"
	"github.com/simplefpvtimer/sftctl/pkg/race"
)

const (
	msgInvalidSetting = "Invalid key/value pair"
	msgNodeAdded      = "Node added!"
	msgAddNodeFailed  = "Failed to add Node"
	msgConfigInvalid  = "Config invalid"
	msgNodeNotFound   = "Node not found, try again"
	msgRssiNotImpl    = "RSSI update not implemented"
	msgSaveFailed     = "Could not save settings"
)

// requireMode answers with an error document unless the controller runs in
// mode. Nodes expect HTTP 200 in this case.
func (s *Server) requireMode(mode model.GameMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.settings.gameMode() != mode {
				writeJSON(w, http.StatusOK, model.StatusResponse{
					Status: model.StatusError,
					Msg:    fmt.Sprintf("Expect %s mode", mode),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.l.Debug("request",
			log.String("method", r.Method),
			log.String("path", r.URL.Path),
			log.String("remote", r.RemoteAddr),
			log.Int("status", ww.Status()),
			log.Duration("took", time.Since(start)),
			log.String("reqId", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.SettingsResponse{
		Config: s.settings.values(),
		State:  &model.DeviceStatus{Players: s.race.Players()},
	})
}

func (s *Server) postSettings(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if err := decode(r, &values); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidSetting)
		return
	}
	if err := s.settings.apply(values); err != nil {
		if errors.Is(err, errSave) {
			s.l.Error("settings not saved", log.ErrorField(err))
			writeError(w, http.StatusOK, msgSaveFailed)
			return
		}
		s.l.Warn("settings rejected", log.ErrorField(err))
		writeError(w, http.StatusOK, msgInvalidSetting)
		return
	}
	s.updateNodes()
	if s.settings.gameMode() == model.GameModeCtf {
		s.game.OnConfigChange(s.settings.config())
	}
	writeJSON(w, http.StatusOK, model.SettingsResponse{
		Status: model.StatusOK,
		Config: s.settings.values(),
	})
}

func (s *Server) postLap(w http.ResponseWriter, r *http.Request) {
	var rep model.LapReport
	if err := decode(r, &rep); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.touchNode(rep.IPv4)
	lap, err := s.race.AddLap(rep)
	var nf *race.PlayerNotFoundError
	if errors.As(err, &nf) {
		s.l.Info("lap of unknown player, registering node",
			log.String("node", nf.IPv4),
			log.String("player", nf.Name))
		s.addNode(nf.IPv4, nf.Name, nf.Name)
		lap, err = s.race.AddLap(rep)
	}
	if err != nil {
		s.l.Warn("lap dropped", log.ErrorField(err))
	} else if pubErr := s.publisher.PublishLap(rep.Player, lap); pubErr != nil {
		s.l.Warn("could not publish lap", log.ErrorField(pubErr))
	}
	writeOK(w)
}

func (s *Server) postConnect(w http.ResponseWriter, r *http.Request) {
	var req model.NodeConnect
	if err := decode(r, &req); err != nil || req.IPv4 == "" {
		writeError(w, http.StatusOK, msgAddNodeFailed)
		return
	}
	s.addNode(req.IPv4, req.Name, req.Player)
	writeJSON(w, http.StatusOK, model.StatusResponse{Status: model.StatusOK, Msg: msgNodeAdded})
}

func (s *Server) getNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.NodesResponse{Nodes: s.Nodes()})
}

func (s *Server) postTimeSync(w http.ResponseWriter, r *http.Request) {
	var data model.TimeSyncData
	if err := decode(r, &data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if data.Client == nil {
		data.Client = []int64{}
	}
	data.Server = append(data.Server, s.now())
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) postClearLaps(w http.ResponseWriter, r *http.Request) {
	req := model.ClearLaps{Offset: s.defaultOffset.Milliseconds()}
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset := time.Duration(req.Offset) * time.Millisecond

	players := s.race.Players()
	if s.archive != nil {
		if id, err := s.archive.SaveRace(players, s.clock.Now()); err != nil {
			s.l.Error("could not archive race", log.ErrorField(err))
		} else if id != "" {
			s.l.Info("race archived", log.String("id", id))
		}
	}
	for i := range players {
		s.push(players[i].IPAddr, "clear_laps", func(ctx context.Context, c NodeClient) error {
			return c.ClearLaps(ctx, offset)
		})
	}
	s.race.Reset()

	names := lo.Map(players, func(p model.Player, _ int) string { return p.Name })
	if err := s.publisher.PublishRaceStarted(s.clock.Now().Add(offset), names); err != nil {
		s.l.Warn("could not publish race start", log.ErrorField(err))
	}
	writeOK(w)
}

func (s *Server) postCtfUpdate(w http.ResponseWriter, r *http.Request) {
	var msg model.CtfUpdate
	if err := decode(r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(msg.Ctf.Nodes) > 0 {
		s.touchNode(msg.Ctf.Nodes[0].IPv4)
	}
	err := s.game.Update(msg)
	var nodeErr *ctf.NodeError
	switch {
	case err == nil:
	case errors.Is(err, ctf.ErrConfigMismatch) && errors.As(err, &nodeErr):
		s.l.Info("ctf node config mismatch", log.String("node", nodeErr.IPv4))
		s.sendCtfSettings(nodeErr.IPv4)
		writeError(w, http.StatusOK, msgConfigInvalid)
		return
	case errors.Is(err, ctf.ErrNodeNotFound) && errors.As(err, &nodeErr):
		s.l.Info("ctf node not found", log.String("node", nodeErr.IPv4))
		s.addNode(nodeErr.IPv4, nodeErr.Name, "")
		writeError(w, http.StatusOK, msgNodeNotFound)
		return
	default:
		s.l.Warn("ctf update ignored", log.ErrorField(err))
	}
	writeOK(w)
}

func (s *Server) postCtfStart(w http.ResponseWriter, r *http.Request) {
	var req model.CtfStart
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	nodes := s.game.Start(time.Duration(req.DurationMs) * time.Millisecond)
	remaining := s.game.TimeLeft()
	for i := range nodes {
		s.push(nodes[i].IPv4, "ctf start", func(ctx context.Context, c NodeClient) error {
			return c.StartNodeCtf(ctx, remaining)
		})
	}
	writeOK(w)
}

func (s *Server) getCtfStop(w http.ResponseWriter, r *http.Request) {
	for _, n := range s.game.Stop() {
		s.push(n.IPv4, "ctf stop", func(ctx context.Context, c NodeClient) error {
			return c.StopCtf(ctx)
		})
	}
	writeOK(w)
}

func (s *Server) getRssiUpdate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.RssiUpdate{Enable: false})
}

func (s *Server) postRssiUpdate(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusOK, msgRssiNotImpl)
}

func decode(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errchkjson // nothing left to do on failure
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, model.StatusResponse{Status: model.StatusOK})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.StatusResponse{Status: model.StatusError, Msg: msg})
}
