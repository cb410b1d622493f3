// Package rewards keeps the McLoone's Bucks ledger: managers award amounts to
// employees, employees read their own balance, managers read the roster.
//
// Amounts are integer cents. Balances are Redis counters and each award is
// appended to a capped per-employee history list in the same transaction.
package rewards
