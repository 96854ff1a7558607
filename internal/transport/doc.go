// Package transport carries encoded protocol messages between processes over
// gRPC. The service has a single unary method, Deliver, whose payload is the
// raw envelope; the receiver hands it to its node inbox and returns at once.
//
// Sends are asynchronous: each peer has a bounded queue drained by one
// goroutine, and a full queue drops the message. The protocols above
// tolerate loss, so there are no retries.
package transport
