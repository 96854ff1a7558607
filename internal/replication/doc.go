// Package replication places keys on three replicas and runs quorum CRUD
// over them.
//
// The coordinator sends one request per replica and resolves the
// transaction on two matching replies. Replicas apply requests to their
// local store and always answer with a reply or a fail. After a ring change
// every node re-pushes its keys to their new replicas (stabilization).
package replication
