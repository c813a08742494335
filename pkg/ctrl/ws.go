package ctrl

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/simplefpvtimer/sftctl/log"
	"github.com/simplefpvtimer/sftctl/pkg/model"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsMaxMessage   = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWs streams the state events to a dashboard. Text messages of the
// client are echoed.
func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.l.Warn("websocket upgrade failed", log.ErrorField(err))
		return
	}
	id := uuid.New().String()
	l := s.l.With(log.String("conn", id), log.String("remote", r.RemoteAddr))
	l.Info("websocket connected", log.String("path", r.URL.Path))

	sub := s.bcast.Subscribe()
	echo := make(chan []byte, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readPump(conn, echo, l)
	}()
	s.writePump(conn, sub, echo, done, l)
	s.bcast.CancelSubscription(sub)
	conn.Close()
	<-done
	l.Info("websocket disconnected")
}

func (s *Server) readPump(conn *websocket.Conn, echo chan<- []byte, l *log.Logger) {
	conn.SetReadLimit(wsMaxMessage)
	//nolint:errcheck // read errors end the loop below
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.Debug("websocket read", log.ErrorField(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case echo <- data:
		default:
		}
	}
}

//nolint:whitespace // can't make both editor and linter happy
func (s *Server) writePump(
	conn *websocket.Conn, sub <-chan []byte, echo <-chan []byte,
	done <-chan struct{}, l *log.Logger,
) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	write := func(msgType int, data []byte) bool {
		//nolint:errcheck // write errors are reported by WriteMessage
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(msgType, data); err != nil {
			l.Debug("websocket write", log.ErrorField(err))
			return false
		}
		return true
	}
	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub:
			if !ok {
				write(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if !write(websocket.TextMessage, msg) {
				return
			}
		case msg := <-echo:
			if !write(websocket.TextMessage, msg) {
				return
			}
		case <-ping.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// stateMessage is the event pushed for the current game mode.
func (s *Server) stateMessage() ([]byte, bool) {
	var ev any
	switch s.settings.gameMode() {
	case model.GameModeRace:
		ev = model.PlayersEvent{Type: model.EventPlayers, Players: s.race.Players()}
	case model.GameModeCtf:
		ev = model.CtfEvent{Type: model.EventCtf, Ctf: s.game.Snapshot()}
	default:
		return nil, false
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.l.Error("could not encode state", log.ErrorField(err))
		return nil, false
	}
	return data, true
}
