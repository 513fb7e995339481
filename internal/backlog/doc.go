// Package backlog stores pending settlement transactions.
//
// A Store is the pacing.Backlog collaborator: it counts unpaid transactions
// and hands out the oldest ones first. Settled transactions leave the backlog.
package backlog
