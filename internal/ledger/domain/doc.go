// Package domain implements the data model of the register core.
//
// This package follows Domain-Driven Design (DDD) principles:
//   - Contains pure Go code; the only third-party import is the canonical JSON
//     encoder used to fix the docket hash wire format
//   - Defines the entities (Register, Transaction, Docket) and their invariants
//   - Defines the repository and event publisher contracts the managers are written against
//   - Provides the error taxonomy shared by every layer
//
// The domain layer has no knowledge of storage technology, transport or scheduling.
//
// # Core Types
//
// Register is a named, tenant-owned ledger with a monotonic height. Height only moves
// when a Docket is sealed.
//
// Transaction is an immutable signed entry identified by a 64 character TxID. Its
// PrevTxID links it to a logical predecessor; forks and gaps are legal at write time
// and only surface through read-time traversal.
//
// Docket is an ordered batch of transaction ids chained to its predecessor through
// PreviousHash. Its Hash is a pure function of (RegisterID, ID, PreviousHash,
// TransactionIDs), see ComputeDocketHash.
//
// # Events
//
// Event is a sealed interface with one struct per lifecycle event. Publishers receive
// values of these concrete types; consumers switch on the type or use the generic
// filters in the events package.
package domain
