package ctf

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/simplefpvtimer/sftctl/log"
	"github.com/simplefpvtimer/sftctl/pkg/cmd/cmdutil"
	"github.com/simplefpvtimer/sftctl/pkg/config"
	"github.com/simplefpvtimer/sftctl/pkg/ctf"
	"github.com/simplefpvtimer/sftctl/pkg/feed"
	"github.com/simplefpvtimer/sftctl/pkg/model"
	"github.com/simplefpvtimer/sftctl/pkg/utils"
)

var scoreTimeout time.Duration

func NewCtfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctf",
		Short: "capture the flag commands",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.Setup(cmd.Context())
		},
	}
	cmd.AddCommand(newStartCmd(), newStopCmd(), newScoreCmd())
	return cmd
}

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "starts a round",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmdutil.DeviceClient().StartCtf(cmd.Context(), config.CtfDuration); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "round of %s started\n", config.CtfDuration)
			return nil
		},
	}
	cmd.Flags().DurationVar(&config.CtfDuration, "duration", 5*time.Minute, "duration of the round")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "stops the running round",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.DeviceClient().StopCtf(cmd.Context())
		},
	}
}

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "prints the standings of the current round",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&scoreTimeout, "timeout", 5*time.Second,
		"how long to wait for the state")
	return cmd
}

// runScore waits for the first ctf event of the live feed.
func runScore(ctx context.Context, out io.Writer) error {
	client := cmdutil.DeviceClient()
	url, err := utils.WebsocketURL(client.BaseURL(), "/ws/ctf")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, scoreTimeout)
	defer cancel()

	state := make(chan model.Ctf, 1)
	disp := feed.NewDispatcher(nil)
	disp.OnCtf(func(c model.Ctf) {
		select {
		case state <- c:
		default:
		}
	})
	go func() {
		//nolint:errcheck // ends with ctx
		feed.NewClient(url, disp).Run(ctx)
	}()

	var cfg *model.Config
	if c, err := client.Config(ctx); err == nil {
		cfg = &c
	} else {
		log.Warn("could not read config, using default colors", log.ErrorField(err))
	}
	select {
	case c := <-state:
		return cmdutil.PrintStandings(out, ctf.Score(c), cfg)
	case <-ctx.Done():
		return fmt.Errorf("no ctf state received: %w", ctx.Err())
	}
}
