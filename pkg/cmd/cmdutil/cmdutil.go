// Package cmdutil holds the setup shared by the sftctl commands.
package cmdutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/simplefpvtimer/sftctl/log"
	"github.com/simplefpvtimer/sftctl/pkg/config"
	"github.com/simplefpvtimer/sftctl/pkg/device"
	"github.com/simplefpvtimer/sftctl/pkg/utils"
)

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger installs the default logger configured by the global flags.
func SetupLogger() error {
	opts := []log.Option{log.WithCaller(true), log.AddCallerSkip(1)}
	if config.LogFilter != "" {
		f, err := log.WithFilter(config.LogFilter)
		if err != nil {
			return fmt.Errorf("log filter: %w", err)
		}
		opts = append(opts, f)
	}
	var logger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(os.Stderr, parseLogLevel(config.LogLevel, log.InfoLevel), opts...)
	default:
		logger = log.DevLogger(os.Stderr, parseLogLevel(config.LogLevel, log.DebugLevel), opts...)
	}
	log.ResetDefault(logger)
	return nil
}

// DeviceClient returns the client for the --device URL.
func DeviceClient() *device.Client {
	return device.NewClient(utils.HTTPURL(config.DeviceURL))
}

// WaitForDevice blocks until the device accepts connections or the
// --wait-for-device duration is over. A zero duration skips the check.
func WaitForDevice(ctx context.Context) error {
	timeout, err := time.ParseDuration(config.WaitForDevice)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 15s", log.ErrorField(err))
		timeout = 15 * time.Second
	}
	if timeout <= 0 {
		return nil
	}
	addr, err := hostPort(utils.HTTPURL(config.DeviceURL))
	if err != nil {
		return err
	}
	return utils.WaitForTCP(ctx, addr, timeout)
}

func hostPort(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	if u.Scheme == "https" {
		return u.Hostname() + ":443", nil
	}
	return u.Hostname() + ":80", nil
}

// Setup runs SetupLogger and WaitForDevice, the usual PreRunE of client
// commands.
func Setup(ctx context.Context) error {
	if err := SetupLogger(); err != nil {
		return err
	}
	return WaitForDevice(ctx)
}
