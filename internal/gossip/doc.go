// Package gossip implements heartbeat-based group membership.
//
// A node joins by sending its table to the introducer, which merges it and
// replies with the full table. Members in the group then bump their own
// heartbeat every tick and push their table to a few random peers. An entry
// whose heartbeat has not advanced for TREMOVE ticks is removed.
//
// Limitations:
// - Removal is local; there is no suspicion or refutation
// - Unseen entries may be adopted on hearsay (see OptimisticJoin)
// - A node removed by mistake rejoins through gossip
package gossip
