package model

import "encoding/json"

type EventType string

const (
	EventPlayers EventType = "players"
	EventCtf     EventType = "ctf"
	EventRssi    EventType = "rssi"
	EventHello   EventType = "hello"
)

// WsEvent is the envelope of every websocket message.
type WsEvent struct {
	Type EventType `json:"type"`
}

type PlayersEvent struct {
	Type    EventType `json:"type"`
	Players []Player  `json:"players"`
}

type CtfEvent struct {
	Type EventType `json:"type"`
	Ctf  Ctf       `json:"ctf"`
}

// RssiData is a single signal sample.
// T is device time in ms, R the raw and S the filtered value,
// I is set while the drone is inside the gate.
type RssiData struct {
	T int64 `json:"t"`
	R int   `json:"r"`
	S int   `json:"s"`
	I bool  `json:"i"`
}

type RssiEvent struct {
	Type EventType  `json:"type"`
	Freq int        `json:"freq"`
	Data []RssiData `json:"data"`
}

type HelloEvent struct {
	Type EventType `json:"type"`
	Msg  string    `json:"msg"`
}

// TimeSyncData is exchanged with /api/v1/time-sync.
// Both arrays hold epoch milliseconds of the respective clock.
type TimeSyncData struct {
	Client []int64 `json:"client"`
	Server []int64 `json:"server,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

type StatusResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg,omitempty"`
}

type SettingsResponse struct {
	Status string         `json:"status,omitempty"`
	Msg    string         `json:"msg,omitempty"`
	Config map[string]any `json:"config,omitempty"`
	State  *DeviceStatus  `json:"-"`
}

type DeviceStatus struct {
	Players []Player `json:"players"`
}

// settings documents use "status" both as a string (POST answers) and as an
// object (GET answers of a node), so it is decoded by hand.
func (s *SettingsResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status json.RawMessage `json:"status"`
		Msg    string          `json:"msg"`
		Config map[string]any  `json:"config"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Msg = raw.Msg
	s.Config = raw.Config
	s.Status = ""
	s.State = nil
	if len(raw.Status) == 0 {
		return nil
	}
	var str string
	if err := json.Unmarshal(raw.Status, &str); err == nil {
		s.Status = str
		return nil
	}
	var st DeviceStatus
	if err := json.Unmarshal(raw.Status, &st); err != nil {
		return err
	}
	s.State = &st
	return nil
}

func (s SettingsResponse) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if s.Config != nil {
		out["config"] = s.Config
	}
	if s.Msg != "" {
		out["msg"] = s.Msg
	}
	switch {
	case s.State != nil:
		out["status"] = s.State
	case s.Status != "":
		out["status"] = s.Status
	}
	return json.Marshal(out)
}

type RssiUpdate struct {
	Enable bool `json:"enable"`
}

//nolint:tagliatelle // device compatibility
type ClearLaps struct {
	Offset int64 `json:"offset"`
}
