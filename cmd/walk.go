package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/register/internal/app"
	"github.com/zjrosen/register/internal/presentation"
)

func newWalkCmd(s *session) *cobra.Command {
	var maxSteps int
	cmd := &cobra.Command{
		Use:   "walk <registerId> <txId>",
		Short: "Follow a transaction chain forward from a transaction",
		Long: `Follow successors (transactions naming the current one as their
predecessor) starting at txId. Forks are listed and the walk continues
along the earliest successor.

Examples:
  register walk 3f2c0a... 9b1e... --max-steps 50`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				walk, err := a.Queries.WalkChain(cmd.Context(), args[0], args[1], maxSteps)
				if err != nil {
					return err
				}
				return output(cmd, presentation.FromWalk(walk))
			})
		},
	}
	cmd.Flags().IntVarP(&maxSteps, "max-steps", "m", 100, "Stop after this many successors")
	return cmd
}
