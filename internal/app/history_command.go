package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
	"github.com/ggonzalez94/swap-cli/internal/store"
)

func (s *runtimeState) newHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently confirmed swaps",
		RunE: func(cmd *cobra.Command, args []string) error {
			historyStore, err := store.Open(s.settings.HistoryPath, s.settings.HistoryLockPath)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "open swap history", err)
			}
			defer historyStore.Close()

			swaps, err := historyStore.Recent(limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "read swap history", err)
			}

			if s.flags.JSON {
				buf, err := json.MarshalIndent(swaps, "", "  ")
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "encode output", err)
				}
				fmt.Fprintln(s.runner.stdout, string(buf))
				return nil
			}
			if len(swaps) == 0 {
				fmt.Fprintln(s.runner.stdout, "no swaps recorded")
				return nil
			}
			for _, info := range swaps {
				fmt.Fprintf(s.runner.stdout, "%s  %s %s -> %s %s  %s\n",
					info.SubmittedAt.Format(time.RFC3339),
					info.FromAmount, info.FromSymbol,
					info.ToAmount, info.ToSymbol,
					info.TxHash)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of swaps to list")
	return cmd
}
