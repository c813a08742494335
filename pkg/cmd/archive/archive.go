package archive

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/simplefpvtimer/sftctl/pkg/cmd/cmdutil"
	"github.com/simplefpvtimer/sftctl/pkg/cmd/rank"
	serverCmd "github.com/simplefpvtimer/sftctl/pkg/cmd/server"
	"github.com/simplefpvtimer/sftctl/pkg/config"
	"github.com/simplefpvtimer/sftctl/pkg/ranking"
	"github.com/simplefpvtimer/sftctl/pkg/storage"
)

var mode = ranking.DefaultMode

func NewArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "inspects the races archived by the controller",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cmdutil.SetupLogger()
		},
	}
	cmd.PersistentFlags().StringVar(&config.DataDir,
		"data-dir",
		serverCmd.DefaultDataDir,
		"directory of the race archive")
	cmd.AddCommand(newListCmd(), newShowCmd())
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "lists the archived races, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(a *storage.Archive) error {
				return listRaces(cmd.OutOrStdout(), a)
			})
		},
	}
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "ranks an archived race",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(func(a *storage.Archive) error {
				return showRace(cmd.OutOrStdout(), a, args[0])
			})
		},
	}
	rank.AddModeFlag(cmd, &mode)
	return cmd
}

func withArchive(f func(a *storage.Archive) error) error {
	db, err := storage.Open(config.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()
	return f(storage.NewArchive(db))
}

func listRaces(out io.Writer, a *storage.Archive) error {
	races, err := a.ListRaces()
	if err != nil {
		return err
	}
	for _, r := range races {
		fmt.Fprintf(out, "%s  %s  %d players  %d laps\n",
			r.ID, r.EndedAt.Local().Format(time.DateTime), len(r.Players), r.NumLaps())
	}
	return nil
}

func showRace(out io.Writer, a *storage.Archive, id string) error {
	r, err := a.LoadRace(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "race %s ended %s\n", r.ID, r.EndedAt.Local().Format(time.DateTime))
	return cmdutil.PrintRanking(out, ranking.Rank(r.Players, mode), mode)
}
