package rank

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/simplefpvtimer/sftctl/pkg/cmd/cmdutil"
	"github.com/simplefpvtimer/sftctl/pkg/ranking"
)

var mode = ranking.DefaultMode

func NewRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "ranks the players of the current race",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.Setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRank(cmd.Context(), cmd.OutOrStdout())
		},
	}
	AddModeFlag(cmd, &mode)
	return cmd
}

// AddModeFlag registers --mode for m.
func AddModeFlag(cmd *cobra.Command, m *ranking.Mode) {
	cmd.Flags().Var(m, "mode",
		"race mode, e.g. fastest-lap, max-laps, fastest-three-consecutive-laps")
}

func runRank(ctx context.Context, out io.Writer) error {
	players, err := cmdutil.DeviceClient().Players(ctx)
	if err != nil {
		return err
	}
	return cmdutil.PrintRanking(out, ranking.Rank(players, mode), mode)
}
