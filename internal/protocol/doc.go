// Package protocol owns the gateway wire contract.
//
// Ownership boundary:
// - envelope encode/decode ({op, d, s, t})
// - opcode table and forward-compatible unknown handling
// - close code classification
package protocol
