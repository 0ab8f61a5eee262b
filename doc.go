package transact

// Package transact emulates multi-operation atomicity on top of a remote,
// non-transactional record API.
//
// The underlying record store offers no two-phase commit and no server-side
// rollback, so atomicity is reconstructed client-side with compensating
// actions: a Transaction journals create/update/delete intents, executes them
// strictly in append order on Commit, and if any step fails it undoes every
// already-applied step in reverse order before reporting the failure.
//
// Overview
//
//  1. Obtain a Transaction from a Coordinator:
//     - Use `NewCoordinator` (or the package-level `Begin` convenience) and
//       pass the RecordStore the transaction should run against.
//  2. Queue operations:
//     - `Create`, `Update`, and `Delete` journal an intent and return its
//       operation id immediately. Nothing touches the store until Commit.
//     - Supply the prior state of a record when updating or deleting it; the
//       snapshot is what rollback restores.
//  3. Commit:
//     - `Commit` executes the journal and returns a TransactionResult. Remote
//       failures never surface as errors from Commit; inspect `Success` and
//       `RollbackPerformed` on the result instead.
//  4. Let the Coordinator watch over it:
//     - Transactions that never reach a terminal state before their
//       configured timeout are rolled back by the Coordinator automatically.
//
// Known limitations: there is no isolation between concurrent transactions
// touching the same remote records, and rolling back a Delete recreates the
// record under a fresh identifier, so the original id cannot be recovered.
