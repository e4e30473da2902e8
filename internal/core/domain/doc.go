// Package domain contains the core entities of the Repobrain sync engine:
// connection records, repository signals, oracle analysis records and the
// invariants that bind them. It has no dependencies outside the standard
// library.
package domain
