package application

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/log"
)

// ChainIssueKind classifies the first defect VerifyChain finds.
type ChainIssueKind string

const (
	// ChainIssueIDGap means a sealed docket id is missing from the sequence.
	ChainIssueIDGap ChainIssueKind = "id_gap"
	// ChainIssueBrokenLink means PreviousHash does not match the preceding docket's hash.
	ChainIssueBrokenLink ChainIssueKind = "broken_link"
	// ChainIssueHashMismatch means the stored hash does not match the docket contents.
	ChainIssueHashMismatch ChainIssueKind = "hash_mismatch"
	// ChainIssueHeightMismatch means the register height differs from the number of sealed dockets.
	ChainIssueHeightMismatch ChainIssueKind = "height_mismatch"
)

// ChainIssue locates a chain defect.
type ChainIssue struct {
	DocketID uint64
	Kind     ChainIssueKind
	Detail   string
}

// ChainVerification is the result of VerifyChain.
type ChainVerification struct {
	RegisterID    string
	Height        uint64
	SealedDockets int
	// Issue is the first defect found, nil when the chain is intact.
	Issue *ChainIssue
}

// Valid reports whether no defect was found.
func (v *ChainVerification) Valid() bool {
	return v.Issue == nil
}

// VerifyChain walks the register's sealed dockets in id order and checks
// sequence, linkage and hashes, then compares the count to the height. It
// stops at the first defect.
func (m *DocketManager) VerifyChain(ctx context.Context, registerID string) (*ChainVerification, error) {
	reg, err := m.repo.GetRegister(ctx, registerID)
	if err != nil {
		return nil, fmt.Errorf("verify chain: %w", err)
	}
	dockets, err := m.repo.ListDockets(ctx, registerID)
	if err != nil {
		return nil, fmt.Errorf("verify chain: %w", err)
	}

	result := &ChainVerification{RegisterID: registerID, Height: reg.Height}
	previousHash := ""
	expectedID := uint64(1)
	for _, d := range dockets {
		if d.State != domain.DocketStateSealed {
			continue
		}
		switch {
		case d.ID != expectedID:
			result.Issue = &ChainIssue{DocketID: expectedID, Kind: ChainIssueIDGap,
				Detail: fmt.Sprintf("expected docket %d, found %d", expectedID, d.ID)}
		case d.PreviousHash != previousHash:
			result.Issue = &ChainIssue{DocketID: d.ID, Kind: ChainIssueBrokenLink,
				Detail: fmt.Sprintf("previous hash %q does not match %q", d.PreviousHash, previousHash)}
		default:
			ok, err := d.VerifyHash()
			if err != nil {
				return nil, fmt.Errorf("verify chain: %w", err)
			}
			if !ok {
				result.Issue = &ChainIssue{DocketID: d.ID, Kind: ChainIssueHashMismatch,
					Detail: "stored hash does not match docket contents"}
			}
		}
		if result.Issue != nil {
			break
		}
		result.SealedDockets++
		previousHash = d.Hash
		expectedID++
	}

	if result.Issue == nil && uint64(result.SealedDockets) != reg.Height {
		result.Issue = &ChainIssue{DocketID: reg.Height, Kind: ChainIssueHeightMismatch,
			Detail: fmt.Sprintf("height %d but %d sealed dockets", reg.Height, result.SealedDockets)}
	}
	if result.Issue != nil {
		log.Warn(log.CatDocket, "chain verification failed",
			"register", registerID, "docket", result.Issue.DocketID, "kind", result.Issue.Kind)
	}
	return result, nil
}

// ChainFork records a transaction claimed as predecessor by more than one successor.
type ChainFork struct {
	TxID       string
	Successors []string
}

// ChainWalk is the result of WalkChain.
type ChainWalk struct {
	// Path lists the visited tx ids, starting with the walk's origin.
	Path  []string
	Forks []ChainFork
	// Tip is the last tx id reached when it has no successor, empty otherwise.
	Tip string
	// StepLimitReached is set when the walk stopped at maxSteps with successors left.
	StepLimitReached bool
	// Cycle is set when a successor was already on the path.
	Cycle bool
}

// WalkChain follows successors forward from fromTxID using the predecessor
// query. At a fork every successor is recorded and the walk continues along
// the earliest one (ties broken by the lower tx id).
func (q *QueryManager) WalkChain(ctx context.Context, registerID, fromTxID string, maxSteps int) (*ChainWalk, error) {
	if fromTxID == "" {
		return nil, recordValidation(q.settings.metrics, "walk_chain", domain.NewValidationError("fromTxId", "fromTxId is required"))
	}
	if maxSteps < 1 {
		return nil, recordValidation(q.settings.metrics, "walk_chain",
			domain.NewValidationError("maxSteps", fmt.Sprintf("maxSteps must be at least 1, got %d", maxSteps)))
	}

	walk := &ChainWalk{Path: []string{fromTxID}}
	visited := map[string]bool{fromTxID: true}
	current := fromTxID
	for steps := 0; ; steps++ {
		successors, err := q.GetTransactionsByPrevTxID(ctx, registerID, current, 1, MaxTraversalPageSize)
		if err != nil {
			return nil, err
		}
		if successors.TotalCount == 0 {
			walk.Tip = current
			return walk, nil
		}
		if steps == maxSteps {
			walk.StepLimitReached = true
			return walk, nil
		}
		if successors.TotalCount > 1 {
			fork := ChainFork{TxID: current}
			for _, tx := range successors.Items {
				fork.Successors = append(fork.Successors, tx.TxID)
			}
			slices.Sort(fork.Successors)
			walk.Forks = append(walk.Forks, fork)
		}

		next := slices.MinFunc(successors.Items, func(a, b *domain.Transaction) int {
			if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
				return c
			}
			return strings.Compare(a.TxID, b.TxID)
		})
		if visited[next.TxID] {
			walk.Cycle = true
			return walk, nil
		}
		visited[next.TxID] = true
		walk.Path = append(walk.Path, next.TxID)
		current = next.TxID
	}
}
