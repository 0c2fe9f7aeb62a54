// Package session owns the resumable gateway session primitives.
//
// Ownership boundary:
// - handshake payloads (identify/resume/presence)
// - session ledger (session id, resume url, sequence)
// - heartbeat cadence and liveness
// - retry/backoff policy and timing defaults
package session
