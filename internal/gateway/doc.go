// Package gateway runs one authenticated gateway session.
//
// The Engine owns the session state machine. Each connection gets a read
// loop and a heartbeat task supervised together; the first failure tears the
// connection down, and the engine resumes or re-identifies after a jittered
// backoff. Dispatch events flow in wire order through the session ledger,
// the entity cache and then the Handler.
package gateway
