package nodes

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/simplefpvtimer/sftctl/pkg/cmd/clocksync"
	"github.com/simplefpvtimer/sftctl/pkg/cmd/cmdutil"
	"github.com/simplefpvtimer/sftctl/pkg/config"
)

func NewNodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "lists the nodes registered at the controller",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.Setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNodes(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&config.NodeStaleAfter,
		"stale-after",
		30*time.Second,
		"nodes not seen for this duration are marked stale")
	clocksync.AddSyncFlags(cmd)
	return cmd
}

func runNodes(ctx context.Context, out io.Writer) error {
	nodes, err := cmdutil.DeviceClient().Nodes(ctx)
	if err != nil {
		return err
	}
	offset := clocksync.Offset(ctx, clocksync.NewService())
	return cmdutil.PrintNodes(out, nodes, time.Now(), offset, config.NodeStaleAfter)
}
