// Package quorum tracks in-flight coordinator transactions. Each reply from
// a replica is tallied as an ack or a fail; a transaction resolves once acks
// reach the quorum or fails make the quorum unreachable, and it expires if
// neither happens within a number of ticks.
package quorum
