// Package transport carries opaque gateway frames over a duplex stream.
//
// A Transport delivers whole messages, reports peer closure as *CloseError
// and is closed exactly once. The engine owns framing and semantics.
package transport
