package laps

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/simplefpvtimer/sftctl/pkg/cmd/clocksync"
	"github.com/simplefpvtimer/sftctl/pkg/cmd/cmdutil"
	"github.com/simplefpvtimer/sftctl/pkg/ranking"
)

var (
	byDuration bool
	localTime  bool
)

func NewLapsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "laps",
		Short: "lists the laps of all players",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.Setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaps(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&byDuration, "by-duration", false, "fastest laps first")
	cmd.Flags().BoolVar(&localTime, "local-time", true,
		"convert lap times to the local clock")
	clocksync.AddSyncFlags(cmd)
	return cmd
}

func runLaps(ctx context.Context, out io.Writer) error {
	players, err := cmdutil.DeviceClient().Players(ctx)
	if err != nil {
		return err
	}
	var offset int64
	if localTime {
		offset = clocksync.Offset(ctx, clocksync.NewService())
	}
	rows := ranking.LapTable(players)
	if byDuration {
		ranking.SortRowsByDuration(rows)
	}
	return cmdutil.PrintLapTable(out, rows, offset)
}
