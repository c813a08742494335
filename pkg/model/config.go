package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// MaxRssi is the number of receiver slots of a timer configuration.
const MaxRssi = 8

type GameMode int

const (
	GameModeRace GameMode = iota
	GameModeCtf
	GameModeSpectrum
)

func (m GameMode) String() string {
	switch m {
	case GameModeRace:
		return "RACE"
	case GameModeCtf:
		return "CTF"
	case GameModeSpectrum:
		return "SPECTRUM"
	default:
		return fmt.Sprintf("GameMode(%d)", int(m))
	}
}

type WifiMode int

const (
	WifiModeAP WifiMode = iota
	WifiModeSTA
)

type NodeMode int

const (
	NodeModeController NodeMode = iota
	NodeModeClient
)

//nolint:tagliatelle // device compatibility
type RSSIConfig struct {
	Name             string `json:"name"`
	Freq             int    `json:"freq"`
	Peak             int    `json:"peak"`
	Filter           int    `json:"filter"`
	OffsetEnter      int    `json:"offset_enter"`
	OffsetLeave      int    `json:"offset_leave"`
	CalibMaxLapCount int    `json:"calib_max_lap_count"`
	CalibMinRssiPeak int    `json:"calib_min_rssi_peak"`
	LedColor         int    `json:"led_color"`
}

// Config is the typed view of a device configuration.
// On the wire the configuration is a flat object, see Flatten.
type Config struct {
	Rssi       []RSSIConfig
	GameMode   GameMode
	NodeName   string
	NodeMode   NodeMode
	CtrlIPv4   string
	CtrlPort   string
	LedNum     int
	ElrsUID    string
	OsdX       int
	OsdY       int
	OsdFormat  string
	WifiMode   WifiMode
	SSID       string
	Passphrase string
}

var (
	ErrUnknownKey   = errors.New("unknown config key")
	ErrInvalidValue = errors.New("invalid config value")
)

var rssiKey = regexp.MustCompile(`^rssi\[(\d)\]\.(\w+)$`)

func DefaultConfig() Config {
	cfg := Config{
		Rssi:      make([]RSSIConfig, MaxRssi),
		GameMode:  GameModeRace,
		NodeMode:  NodeModeController,
		CtrlIPv4:  "0.0.0.0",
		CtrlPort:  "80",
		LedNum:    25,
		ElrsUID:   "0,0,0,0,0,0",
		OsdFormat: "%2L: %5.2ts(%6.2ds)",
		WifiMode:  WifiModeAP,
		SSID:      "clemixfpv",
	}
	for i := range cfg.Rssi {
		cfg.Rssi[i] = RSSIConfig{
			Peak:             900,
			Filter:           60,
			OffsetEnter:      80,
			OffsetLeave:      70,
			CalibMaxLapCount: 3,
			CalibMinRssiPeak: 600,
			LedColor:         255,
		}
	}
	cfg.Rssi[0].Freq = 5917
	cfg.Rssi[0].LedColor = 14876421
	return cfg
}

// Flatten returns the wire representation with keys like "rssi[0].freq".
func (c Config) Flatten() map[string]any {
	ret := map[string]any{
		"game_mode":  int(c.GameMode),
		"node_name":  c.NodeName,
		"node_mode":  int(c.NodeMode),
		"ctrl_ipv4":  c.CtrlIPv4,
		"ctrl_port":  c.CtrlPort,
		"led_num":    c.LedNum,
		"elrs_uid":   c.ElrsUID,
		"osd_x":      c.OsdX,
		"osd_y":      c.OsdY,
		"osd_format": c.OsdFormat,
		"wifi_mode":  int(c.WifiMode),
		"ssid":       c.SSID,
		"passphrase": c.Passphrase,
	}
	for i := range c.Rssi {
		r := c.Rssi[i]
		for k, v := range map[string]any{
			"name":                r.Name,
			"freq":                r.Freq,
			"peak":                r.Peak,
			"filter":              r.Filter,
			"offset_enter":        r.OffsetEnter,
			"offset_leave":        r.OffsetLeave,
			"calib_max_lap_count": r.CalibMaxLapCount,
			"calib_min_rssi_peak": r.CalibMinRssiPeak,
			"led_color":           r.LedColor,
		} {
			ret[RssiKey(i, k)] = v
		}
	}
	return ret
}

func RssiKey(idx int, name string) string {
	return fmt.Sprintf("rssi[%d].%s", idx, name)
}

// ConfigFromFlat decodes a flat configuration. Keys missing in values keep
// their defaults, unknown keys are reported as ErrUnknownKey.
//
//nolint:funlen,cyclop // one case per key
func ConfigFromFlat(values map[string]any) (Config, error) {
	cfg := DefaultConfig()
	for k, v := range values {
		if m := rssiKey.FindStringSubmatch(k); m != nil {
			idx, _ := strconv.Atoi(m[1])
			if idx >= MaxRssi {
				return cfg, fmt.Errorf("%w: %s", ErrUnknownKey, k)
			}
			if err := setRssiValue(&cfg.Rssi[idx], m[2], v); err != nil {
				return cfg, fmt.Errorf("%s: %w", k, err)
			}
			continue
		}
		var err error
		switch k {
		case "game_mode":
			var i int
			i, err = ToInt(v)
			cfg.GameMode = GameMode(i)
		case "node_name":
			cfg.NodeName, err = ToString(v)
		case "node_mode":
			var i int
			i, err = ToInt(v)
			cfg.NodeMode = NodeMode(i)
		case "ctrl_ipv4":
			cfg.CtrlIPv4, err = ToString(v)
		case "ctrl_port":
			cfg.CtrlPort, err = ToString(v)
		case "led_num":
			cfg.LedNum, err = ToInt(v)
		case "elrs_uid":
			cfg.ElrsUID, err = ToString(v)
		case "osd_x":
			cfg.OsdX, err = ToInt(v)
		case "osd_y":
			cfg.OsdY, err = ToInt(v)
		case "osd_format":
			cfg.OsdFormat, err = ToString(v)
		case "wifi_mode":
			var i int
			i, err = ToInt(v)
			cfg.WifiMode = WifiMode(i)
		case "ssid":
			cfg.SSID, err = ToString(v)
		case "passphrase":
			cfg.Passphrase, err = ToString(v)
		default:
			return cfg, fmt.Errorf("%w: %s", ErrUnknownKey, k)
		}
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", k, err)
		}
	}
	return cfg, nil
}

func setRssiValue(r *RSSIConfig, name string, v any) error {
	if name == "name" {
		s, err := ToString(v)
		r.Name = s
		return err
	}
	target := map[string]*int{
		"freq":                &r.Freq,
		"peak":                &r.Peak,
		"filter":              &r.Filter,
		"offset_enter":        &r.OffsetEnter,
		"offset_leave":        &r.OffsetLeave,
		"calib_max_lap_count": &r.CalibMaxLapCount,
		"calib_min_rssi_peak": &r.CalibMinRssiPeak,
		"led_color":           &r.LedColor,
	}[name]
	if target == nil {
		return ErrUnknownKey
	}
	i, err := ToInt(v)
	if err != nil {
		return err
	}
	*target = i
	return nil
}

// ActiveRssi returns the indexes of slots with a frequency configured.
func (c Config) ActiveRssi() []int {
	ret := make([]int, 0, len(c.Rssi))
	for i := range c.Rssi {
		if c.Rssi[i].Freq != 0 {
			ret = append(ret, i)
		}
	}
	return ret
}

// ToInt accepts JSON numbers and numeric strings.
func ToInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		return int(x), nil
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidValue, v)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(x)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidValue, x)
		}
		return i, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrInvalidValue, v)
	}
}

func ToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case nil:
		return "", nil
	case float64, int, int64, json.Number:
		return fmt.Sprintf("%v", x), nil
	default:
		return "", fmt.Errorf("%w: %v", ErrInvalidValue, v)
	}
}
