package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/register/internal/app"
	"github.com/zjrosen/register/internal/presentation"
)

// ErrChainInvalid is returned when at least one verified chain has a defect.
var ErrChainInvalid = errors.New("chain verification failed")

func newVerifyCmd(s *session) *cobra.Command {
	var (
		all         bool
		parallelism int
	)
	cmd := &cobra.Command{
		Use:   "verify [registerId...]",
		Short: "Verify the sealed docket chain of one or more registers",
		Long: `Recompute every sealed docket hash, check the previous-hash links and
compare the register height with the number of sealed dockets.

The command prints one result per register and exits non-zero if any chain
has a defect or could not be read.

Examples:
  register verify 3f2c0a...
  register verify --all --parallel 8 | jq '.[] | select(.valid | not)'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("pass register ids or --all, not both")
			}
			if parallelism < 1 {
				return fmt.Errorf("--parallel must be at least 1, got %d", parallelism)
			}
			return s.withApp(cmd.Context(), func(a *app.App) error {
				var results []app.ChainResult
				if all {
					var err error
					results, err = a.VerifyAllChains(cmd.Context(), parallelism)
					if err != nil {
						return err
					}
				} else {
					results = a.VerifyChains(cmd.Context(), args, parallelism)
				}

				if err := output(cmd, presentation.FromChainResults(results)); err != nil {
					return err
				}
				failed := 0
				for _, r := range results {
					if !r.Valid() {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%w: %d of %d register(s)", ErrChainInvalid, failed, len(results))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Verify every register")
	cmd.Flags().IntVarP(&parallelism, "parallel", "p", 4, "Registers verified concurrently")
	return cmd
}
