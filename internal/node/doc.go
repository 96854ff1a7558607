// Package node wires one cluster member together. Inbound payloads land in
// two inboxes, split by protocol; Step drains them and then drives the
// membership tick, the ring rebuild and the replication tick. Everything a
// node sends goes through a Sender, which is an emulated network in
// simulations and a gRPC client in a real deployment.
package node
