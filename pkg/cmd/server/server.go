package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/simplefpvtimer/sftctl/log"
	"github.com/simplefpvtimer/sftctl/pkg/cmd/cmdutil"
	"github.com/simplefpvtimer/sftctl/pkg/config"
	"github.com/simplefpvtimer/sftctl/pkg/ctrl"
	"github.com/simplefpvtimer/sftctl/pkg/events"
	"github.com/simplefpvtimer/sftctl/pkg/storage"
)

// DefaultDataDir is shared with the archive command.
const DefaultDataDir = "data"

func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "runs the race controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmdutil.SetupLogger(); err != nil {
				return err
			}
			return startServer(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&config.ServerAddr,
		"addr",
		":8080",
		"controller listen address")
	cmd.Flags().StringVar(&config.SettingsFile,
		"settings-file",
		"settings.json",
		"file the controller settings are persisted to")
	cmd.Flags().StringVar(&config.DataDir,
		"data-dir",
		DefaultDataDir,
		"directory of the race archive (empty: in memory)")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"publish lap and race events to this NATS server")
	cmd.Flags().StringVar(&config.NatsSubjectPrefix,
		"nats-subject-prefix",
		"",
		"prefix of the NATS subjects, e.g. club gives club.sft.lap")
	cmd.Flags().StringVar(&config.WWWDir,
		"www",
		"",
		"directory with the dashboard files")
	cmd.Flags().DurationVar(&config.PushInterval,
		"push-interval",
		time.Second,
		"interval of the websocket state pushes")
	cmd.Flags().DurationVar(&config.StartOffset,
		"start-offset",
		30*time.Second,
		"race start delay if clear_laps does not send one")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data (stdout for console)")
	return cmd
}

//nolint:funlen // wiring
func startServer(parent context.Context) error {
	log.Debug("Config:",
		log.String("addr", config.ServerAddr),
		log.String("settings", config.SettingsFile),
		log.String("dataDir", config.DataDir),
		log.String("nats", config.NatsURL),
		log.String("natsPrefix", config.NatsSubjectPrefix),
		log.String("www", config.WWWDir),
	)

	var telemetry *config.Telemetry
	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		var err error
		if telemetry, err = config.SetupTelemetry(parent); err != nil {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		} else {
			defer telemetry.Shutdown()
		}
	}

	db, err := storage.Open(config.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []ctrl.Option{
		ctrl.WithSettingsFile(config.SettingsFile),
		ctrl.WithPushInterval(config.PushInterval),
		ctrl.WithDefaultOffset(config.StartOffset),
		ctrl.WithArchive(storage.NewArchive(db)),
		ctrl.WithStaticDir(config.WWWDir),
	}
	if config.NatsURL != "" {
		pub, err := events.Connect(config.NatsURL,
			events.WithSubjectPrefix(config.NatsSubjectPrefix))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer pub.Close()
		opts = append(opts, ctrl.WithPublisher(pub))
	}

	setupGoRoutinesDump()
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting server")
	if err := ctrl.New(opts...).ListenAndServe(ctx, config.ServerAddr); err != nil {
		log.Error("server stopped", log.ErrorField(err))
		return err
	}
	log.Info("Server terminated")
	return nil
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}
