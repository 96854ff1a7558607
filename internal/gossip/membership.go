package gossip

import (
	"ringkv/internal/address"
)

// State represents how far a node has joined the group.
type State int

const (
	Uninitialized State = iota
	Joining
	InGroup
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Joining:
		return "JOINING"
	case InGroup:
		return "IN_GROUP"
	default:
		return "UNKNOWN"
	}
}

// Entry is one row of the membership table. Timestamp is the local tick at
// which the heartbeat last advanced.
type Entry struct {
	ID        uint32
	Port      uint16
	Heartbeat int64
	Timestamp int64
}

// Addr returns the member's address.
func (e Entry) Addr() address.Address {
	return address.New(e.ID, e.Port)
}

// EntryFor builds an entry for addr.
func EntryFor(addr address.Address, heartbeat, timestamp int64) Entry {
	return Entry{ID: addr.ID(), Port: addr.Port(), Heartbeat: heartbeat, Timestamp: timestamp}
}

// table keeps self at index 0 and at most one entry per id.
type table struct {
	entries []Entry
}

func (t *table) find(id uint32) int {
	for i := range t.entries {
		if t.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *table) snapshot() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// removeStale drops every non-self entry older than limit at now, in two
// passes so no entry is skipped, and returns what it removed.
func (t *table) removeStale(now, limit int64) []Entry {
	var stale []int
	for i := 1; i < len(t.entries); i++ {
		if now-t.entries[i].Timestamp > limit {
			stale = append(stale, i)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	removed := make([]Entry, 0, len(stale))
	kept := t.entries[:0]
	next := 0
	for i, e := range t.entries {
		if next < len(stale) && stale[next] == i {
			removed = append(removed, e)
			next++
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
	return removed
}
