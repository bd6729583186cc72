package domain

import (
	"slices"
	"time"
)

// DocketState represents the lifecycle state of a docket.
type DocketState string

const (
	// DocketStateInit is the state of a freshly created docket.
	DocketStateInit DocketState = "init"

	// DocketStateProposed indicates the docket has been staged for review.
	DocketStateProposed DocketState = "proposed"

	// DocketStateAccepted indicates an external review layer accepted the docket.
	DocketStateAccepted DocketState = "accepted"

	// DocketStateSealed is terminal. Only sealing advances the register height.
	DocketStateSealed DocketState = "sealed"
)

// String returns the string representation of the state.
func (s DocketState) String() string {
	return string(s)
}

// IsValid returns true if the state is a recognized docket state.
func (s DocketState) IsValid() bool {
	switch s {
	case DocketStateInit, DocketStateProposed, DocketStateAccepted, DocketStateSealed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transitions are possible.
func (s DocketState) IsTerminal() bool {
	return s == DocketStateSealed
}

// allowedDocketTransitions lists the source states each target state accepts.
var allowedDocketTransitions = map[DocketState][]DocketState{
	DocketStateProposed: {DocketStateInit},
	DocketStateAccepted: {DocketStateProposed},
	DocketStateSealed:   {DocketStateProposed, DocketStateAccepted},
}

// CanTransitionTo reports whether the state machine allows moving from s to target.
func (s DocketState) CanTransitionTo(target DocketState) bool {
	return slices.Contains(allowedDocketTransitions[target], s)
}

// Docket is an ordered batch of transaction ids chained to its predecessor.
type Docket struct {
	// ID is 1-based and sequential per register.
	ID         uint64
	RegisterID string
	// TransactionIDs are the TxIDs included, in order.
	TransactionIDs []string
	// PreviousHash is the hash of the preceding sealed docket, empty for genesis.
	PreviousHash string
	Hash         string
	State        DocketState
	// TimeStamp is refreshed on every transition.
	TimeStamp time.Time
}

// Clone returns a deep copy of the docket.
func (d *Docket) Clone() *Docket {
	if d == nil {
		return nil
	}
	c := *d
	c.TransactionIDs = slices.Clone(d.TransactionIDs)
	return &c
}

// TransitionTo moves the docket to target, refreshing the timestamp.
// The docket is left untouched when the transition is not allowed.
func (d *Docket) TransitionTo(target DocketState, now time.Time) error {
	if !d.State.CanTransitionTo(target) {
		return &StateTransitionError{
			Entity: "docket",
			From:   string(d.State),
			To:     string(target),
		}
	}
	d.State = target
	d.TimeStamp = now
	return nil
}

// ComputeHash recomputes the hash from the docket's current fields.
func (d *Docket) ComputeHash() (string, error) {
	return ComputeDocketHash(d.RegisterID, d.ID, d.PreviousHash, d.TransactionIDs)
}

// VerifyHash reports whether the stored hash matches the recomputed hash.
func (d *Docket) VerifyHash() (bool, error) {
	h, err := d.ComputeHash()
	if err != nil {
		return false, err
	}
	return h == d.Hash, nil
}
