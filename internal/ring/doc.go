// Package ring implements the consistent hashing ring. Each member address
// hashes to one position; a key is stored on the first node at or after its
// hash and on the next two nodes clockwise. The Manager rebuilds the ring
// from a membership snapshot and reports when its member set changes.
package ring
