// Package ackstore persists which concrete alert firings have already
// been surfaced.
//
// The store is append/prune-only shared state across process restarts:
// consumers record their own keys and never rewrite existing entries;
// pruning of old entries is driven from the outside (the daemon's
// maintenance job). Two drivers exist: a jsonl file backend and sqlite.
package ackstore
