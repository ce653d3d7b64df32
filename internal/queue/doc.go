// Package queue persists import jobs in SQLite and implements the atomic
// claim that coordinates concurrent workers.
//
// Claiming is a guarded UPDATE: eligibility (queued, or processing with a
// stale lock) is re-checked inside the claim statement itself, so two pollers
// racing on the same row produce exactly one winner. All mutations are
// field-level updates; whole-row rewrites never happen, which keeps progress
// written by one code path from clobbering another.
package queue
