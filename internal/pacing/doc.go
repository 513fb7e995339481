// Package pacing decides how much of the pending backlog to release on each
// invocation and how to stagger it.
//
// One invocation runs three steps:
//   - Cycle clock: map wall-clock time (in the canonical zone) to a step of
//     the daily cycle, or report an idle hour.
//   - Selection sizer: size the release so each sub-cycle drains the backlog
//     by its deadline, never below the configured floor.
//   - Paced dispatcher: fetch the oldest items, split them into waves and hand
//     each item to the sink with a delay spread across the window.
//
// The package holds no state between invocations. Everything it needs is an
// immutable Config plus the Backlog and Sink collaborators.
package pacing
