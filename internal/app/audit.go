package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/register/internal/ledger/application"
	"github.com/zjrosen/register/internal/log"
)

// ChainResult is the outcome of verifying one register's chain. Err is set
// when the register could not be read.
type ChainResult struct {
	RegisterID   string
	Verification *application.ChainVerification
	Err          error
}

// Valid reports whether the chain was read and has no defect.
func (r ChainResult) Valid() bool {
	return r.Err == nil && r.Verification.Valid()
}

// VerifyChains verifies each register with at most parallelism checks in
// flight. Results keep the order of ids. A failed read is reported in its
// result and does not stop the other checks.
func (a *App) VerifyChains(ctx context.Context, ids []string, parallelism int) []ChainResult {
	results := make([]ChainResult, len(ids))
	var eg errgroup.Group
	eg.SetLimit(max(parallelism, 1))
	for i, id := range ids {
		eg.Go(func() error {
			v, err := a.Dockets.VerifyChain(ctx, id)
			results[i] = ChainResult{RegisterID: id, Verification: v, Err: err}
			if err != nil {
				a.metrics.ChainVerifyFailed(id)
				log.ErrorErr(log.CatDocket, "chain verification could not run", err, "register", id)
				return nil
			}
			a.metrics.ChainVerified(id, v.Height, v.Valid())
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// VerifyAllChains verifies every register.
func (a *App) VerifyAllChains(ctx context.Context, parallelism int) ([]ChainResult, error) {
	registers, err := a.Registers.GetAllRegisters(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(registers))
	for _, r := range registers {
		ids = append(ids, r.ID)
	}
	return a.VerifyChains(ctx, ids, parallelism), nil
}
