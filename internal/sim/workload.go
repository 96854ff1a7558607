package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"ringkv/internal/audit"
	"ringkv/internal/emulnet"
	"ringkv/internal/replication"
)

// Workload issues random client operations against a cluster. Keys are
// created before they are read, updated or deleted.
type Workload struct {
	rng  *rand.Rand
	keys []string
	next int

	Issued  int
	Skipped int
}

// NewWorkload creates a workload with a deterministic seed.
func NewWorkload(seed int64) *Workload {
	return &Workload{rng: rand.New(rand.NewSource(seed))}
}

// Issue starts one operation on a random live node. Operations that find no
// replicas are counted as skipped.
func (w *Workload) Issue(c *Cluster) (audit.Op, string, error) {
	live := c.Live()
	if len(live) == 0 {
		return 0, "", ErrNoLiveNodes
	}
	coord := live[w.rng.Intn(len(live))]

	op := audit.OpCreate
	if len(w.keys) > 0 && w.rng.Intn(10) >= 4 {
		op = []audit.Op{audit.OpRead, audit.OpUpdate, audit.OpDelete}[w.rng.Intn(3)]
	}

	var (
		key string
		err error
	)
	switch op {
	case audit.OpCreate:
		key = fmt.Sprintf("key-%d", w.next)
		w.next++
		_, err = coord.ClientCreate(key, w.value())
		if err == nil {
			w.keys = append(w.keys, key)
		}
	case audit.OpRead:
		key = w.pick()
		_, err = coord.ClientRead(key)
	case audit.OpUpdate:
		key = w.pick()
		_, err = coord.ClientUpdate(key, w.value())
	case audit.OpDelete:
		i := w.rng.Intn(len(w.keys))
		key = w.keys[i]
		_, err = coord.ClientDelete(key)
		if err == nil {
			w.keys = append(w.keys[:i], w.keys[i+1:]...)
		}
	}

	if errors.Is(err, replication.ErrNoReplicas) {
		w.Skipped++
		return op, key, nil
	}
	if err != nil {
		return op, key, err
	}
	w.Issued++
	return op, key, nil
}

func (w *Workload) pick() string {
	return w.keys[w.rng.Intn(len(w.keys))]
}

func (w *Workload) value() string {
	return fmt.Sprintf("v%06d", w.rng.Intn(1000000))
}

// Tally counts coordinator outcomes for one operation.
type Tally struct {
	Success int
	Fail    int
}

// Summary describes the state of a cluster after a run.
type Summary struct {
	Rounds  int
	Nodes   int
	Live    int
	Members map[string]int
	Keys    map[string]int
	Ops     map[audit.Op]Tally
	Net     emulnet.Stats
}

// Summarize collects per-node membership and storage sizes and the
// coordinator outcome counts.
func (c *Cluster) Summarize() Summary {
	s := Summary{
		Rounds:  c.round,
		Nodes:   len(c.nodes),
		Members: make(map[string]int),
		Keys:    make(map[string]int),
		Ops:     make(map[audit.Op]Tally),
		Net:     c.net.Stats(),
	}
	for _, n := range c.Live() {
		s.Live++
		s.Members[n.Addr().String()] = len(n.Members())
		s.Keys[n.Addr().String()] = n.Store().Len()
	}
	for _, e := range c.rec.Filter(func(e audit.Event) bool {
		return e.Kind == audit.KindOutcome && e.Coordinator
	}) {
		t := s.Ops[e.Op]
		if e.Success {
			t.Success++
		} else {
			t.Fail++
		}
		s.Ops[e.Op] = t
	}
	return s
}

// NodeNames returns the summary's node addresses in order.
func (s Summary) NodeNames() []string {
	names := make([]string, 0, len(s.Members))
	for name := range s.Members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
