package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/harsh-dexter/notera/internal/ledger"
	"github.com/harsh-dexter/notera/internal/output"
)

func NewSessionsCmd(deps *Dependencies) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions [session-id]",
		Short: "List recorded sessions and their chunk delivery",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())

			cfg, err := deps.Config()
			if err != nil {
				return err
			}
			if cfg.Storage.LedgerPath == "" {
				return errors.New("the session ledger is disabled (storage.ledger_path is empty)")
			}

			l, err := ledger.Open(cfg.Storage.LedgerPath)
			if err != nil {
				return err
			}
			defer l.Close()

			if len(args) == 1 {
				chunks, err := l.ListChunks(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(chunks) == 0 {
					formatter.Info("No chunks recorded for " + args[0])
					return nil
				}
				for _, c := range chunks {
					formatter.ChunkListItem(c)
				}
				return nil
			}

			sessions, err := l.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				formatter.Info("No sessions found")
				return nil
			}

			formatter.SessionListHeader()
			for _, s := range sessions {
				formatter.SessionListItem(s)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions to show")

	return cmd
}
