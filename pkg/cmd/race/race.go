package race

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/simplefpvtimer/sftctl/pkg/cmd/cmdutil"
	"github.com/simplefpvtimer/sftctl/pkg/config"
)

func NewRaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "race",
		Short: "race commands",
	}
	cmd.AddCommand(newStartCmd())
	return cmd
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "clears all laps, the race starts after the offset",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.Setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmdutil.DeviceClient().ClearLaps(cmd.Context(), config.StartOffset); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "race starts in %s\n", config.StartOffset)
			return nil
		},
	}
	cmd.Flags().DurationVar(&config.StartOffset,
		"offset",
		30*time.Second,
		"delay between clearing the laps and the race start")
	return cmd
}
