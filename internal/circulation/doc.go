// Package circulation implements the borrowing core of the library: the
// inventory ledger (copies and availability counters), the loan lifecycle
// and overdue fine accrual.
//
// Every operation takes an explicit AuthContext describing the caller and
// runs its writes in a single database transaction. Copy selection is a
// compare-and-swap on the copy's status, so two concurrent borrowers can
// never receive the same copy, and availability counters only move by
// atomic increments committed together with the copy change they mirror.
//
// Fine accrual is idempotent: a loan carries at most one accrued fine at a
// time and its amount is frozen when it is written. Settling the fine of a
// loan that is still out lets the next accrual fine it again. Accrual runs
// as its own committed step before CreateLoan, CloseLoan and ExtendLoan, and
// whenever a user's loans are listed.
//
// Side effects outside the transaction (audit entries and
// notifications) go through the AuditSink and Notifier interfaces after
// commit. Their failures are logged and never fail the operation.
package circulation
