package clocksync

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/simplefpvtimer/sftctl/log"
	"github.com/simplefpvtimer/sftctl/pkg/cmd/cmdutil"
	"github.com/simplefpvtimer/sftctl/pkg/config"
	"github.com/simplefpvtimer/sftctl/pkg/timesync"
)

func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "estimates the clock offset of the device",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.Setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), cmd.OutOrStdout())
		},
	}
	AddSyncFlags(cmd)
	return cmd
}

// AddSyncFlags adds the flags of NewService to cmd.
func AddSyncFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&config.SyncTimeout,
		"sync-timeout",
		5*time.Second,
		"timeout of a single time-sync round trip")
}

// NewService returns the clock sync for the --device URL.
func NewService() *timesync.Service {
	return timesync.New(cmdutil.DeviceClient(),
		timesync.WithRoundTripTimeout(config.SyncTimeout))
}

// Offset syncs with the device and falls back to 0 on failure.
func Offset(ctx context.Context, svc *timesync.Service) int64 {
	off, err := svc.Sync(ctx)
	if err != nil {
		log.Warn("clock sync failed, using device time", log.ErrorField(err))
		return 0
	}
	return off
}

func runSync(ctx context.Context, out io.Writer) error {
	start := time.Now()
	off, err := NewService().Sync(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "offset %dms (local - device), took %s\n",
		off, time.Since(start).Truncate(time.Millisecond))
	return nil
}
