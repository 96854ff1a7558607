package quorum

import (
	"errors"
	"testing"
)

type request struct {
	key string
}

func TestTable_TwoAcksSucceed(t *testing.T) {
	table := NewTable[request](2)
	if err := table.Open(1, request{key: "k"}, 3, 0); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	_, d, found := table.Record(1, true)
	if !found || d != Pending {
		t.Fatalf("Expected pending after one ack, got %v (found=%v)", d, found)
	}

	txn, d, found := table.Record(1, true)
	if !found || d != Succeeded {
		t.Fatalf("Expected success after two acks, got %v", d)
	}
	if txn.Info.key != "k" || txn.Acks != 2 {
		t.Errorf("Unexpected txn %+v", txn)
	}
	if table.Len() != 0 {
		t.Errorf("Resolved transaction should be removed, Len=%d", table.Len())
	}
}

func TestTable_TwoFailsFail(t *testing.T) {
	table := NewTable[request](2)
	_ = table.Open(1, request{}, 3, 0)

	table.Record(1, false)
	txn, d, _ := table.Record(1, false)
	if d != Failed {
		t.Fatalf("Expected failure after two fails, got %v", d)
	}
	if txn.Counter() != -2 {
		t.Errorf("Expected counter -2, got %d", txn.Counter())
	}
}

func TestTable_SplitStaysPending(t *testing.T) {
	table := NewTable[request](2)
	_ = table.Open(1, request{}, 3, 0)

	table.Record(1, true)
	txn, d, _ := table.Record(1, false)
	if d != Pending {
		t.Fatalf("Expected 1-1 to stay pending, got %v", d)
	}
	if txn.Counter() != 0 {
		t.Errorf("Expected counter 0, got %d", txn.Counter())
	}

	// Third reply decides
	_, d, _ = table.Record(1, true)
	if d != Succeeded {
		t.Errorf("Expected success on 2-1, got %v", d)
	}
}

func TestTable_LateReplyIgnored(t *testing.T) {
	table := NewTable[request](2)
	_ = table.Open(1, request{}, 3, 0)
	table.Record(1, true)
	table.Record(1, true)

	if _, _, found := table.Record(1, true); found {
		t.Error("Reply after resolution should not be found")
	}
	if _, _, found := table.Record(99, true); found {
		t.Error("Reply for unknown id should not be found")
	}
}

func TestTable_OpenDuplicate(t *testing.T) {
	table := NewTable[request](2)
	_ = table.Open(1, request{}, 3, 0)
	if err := table.Open(1, request{}, 3, 0); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}

func TestTable_Expire(t *testing.T) {
	table := NewTable[request](2)
	_ = table.Open(3, request{key: "c"}, 3, 5)
	_ = table.Open(1, request{key: "a"}, 3, 0)
	_ = table.Open(2, request{key: "b"}, 3, 2)

	if got := table.Expire(9, 10); len(got) != 0 {
		t.Fatalf("Nothing should expire at tick 9, got %d", len(got))
	}

	got := table.Expire(12, 10)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("Expected txns 1 and 2 to expire in order, got %+v", got)
	}
	if table.Len() != 1 {
		t.Errorf("Expected 1 open transaction, got %d", table.Len())
	}
	if _, ok := table.Get(3); !ok {
		t.Error("Transaction 3 should still be open")
	}
}

func TestTable_Remove(t *testing.T) {
	table := NewTable[request](2)
	_ = table.Open(7, request{key: "k"}, 3, 0)

	txn, ok := table.Remove(7)
	if !ok || txn.Info.key != "k" {
		t.Fatalf("Remove returned %+v, %v", txn, ok)
	}
	if _, ok := table.Remove(7); ok {
		t.Error("Second remove should report missing")
	}
}

func TestTable_ReplyFailReplySucceeds(t *testing.T) {
	table := NewTable[request](2)
	_ = table.Open(1, request{}, 3, 0)

	table.Record(1, true)
	if _, d, _ := table.Record(1, false); d != Pending {
		t.Fatalf("Expected pending after reply+fail, got %v", d)
	}
	txn, d, _ := table.Record(1, true)
	if d != Succeeded {
		t.Fatalf("Expected two acks out of three to succeed, got %v", d)
	}
	// The ack counter alone reads +1 here; acks are what decide.
	if txn.Counter() != 1 || txn.Acks != 2 {
		t.Errorf("Unexpected tally acks=%d counter=%d", txn.Acks, txn.Counter())
	}
}
