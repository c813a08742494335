package config

import "time"

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	DeviceURL         string        // base URL of the timer device or controller
	WaitForDevice     string        // duration to wait for the device to answer
	LogLevel          string        // sets the log level (zap log level values)
	LogFormat         string        // text vs json
	LogFilter         string        // zapfilter rules, e.g. "*:info timesync:debug"
	SyncTimeout       time.Duration // timeout for a single time-sync round trip
	ReconnectDelay    time.Duration // delay before the live feed reconnects
	ServerAddr        string        // listen addr for the controller server
	SettingsFile      string        // path of the persisted controller settings
	DataDir           string        // badger directory for the race archive
	NatsURL           string        // if set, lap events are published to NATS
	NatsSubjectPrefix string        // prepended to the NATS subjects
	WWWDir            string        // directory with static dashboard files
	PushInterval      time.Duration // interval of websocket state pushes
	NodeStaleAfter    time.Duration // nodes not seen for this duration are stale
	StartOffset       time.Duration // delay between clearing laps and race start
	CtfDuration       time.Duration // duration of a CTF round
	ShowRssi          bool          // watch prints RSSI summaries
	RssiHistory       time.Duration // how long RSSI samples are kept
	SettingsTTL       time.Duration // how long fetched device settings are cached
)

var (
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // otlp grpc endpoint or "stdout"
)
