// Package alert computes when calendar alerts are due.
//
// Everything in this package is pure and reentrant: offset-duration
// parsing, trigger resolution to absolute fire instants, effective-alert
// resolution against calendar defaults, dedup key construction, and the
// pending-alert evaluation that combines them against a supplied clock
// value. No function here reads the wall clock, touches I/O, or holds
// state; callers own time, persistence, and dispatch.
package alert
