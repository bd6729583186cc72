package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/register/internal/app"
	"github.com/zjrosen/register/internal/presentation"
)

func newStatsCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <registerId>",
		Short: "Summarize a register's transactions",
		Long: `Print transaction, wallet and payload counts and the earliest and latest
transaction times for a register.

Examples:
  register stats 3f2c0a... | jq .unique_wallets`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				stats, err := a.Queries.GetTransactionStatistics(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return output(cmd, presentation.FromStatistics(stats))
			})
		},
	}
}
