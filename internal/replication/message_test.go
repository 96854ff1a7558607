package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ringkv/internal/audit"
)

func TestKind_Classification(t *testing.T) {
	tests := []struct {
		kind    Kind
		name    string
		request bool
		success bool
		op      audit.Op
	}{
		{Create, "CREATE", true, false, audit.OpCreate},
		{Read, "READ", true, false, audit.OpRead},
		{UpdateReply, "UPDATEREPLY", false, true, audit.OpUpdate},
		{DeleteReply, "DELETEREPLY", false, true, audit.OpDelete},
		{CreateFail, "CREATEFAIL", false, false, audit.OpCreate},
		{ReadFail, "READFAIL", false, false, audit.OpRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.kind.String())
			assert.True(t, tt.kind.Valid())
			assert.Equal(t, tt.request, tt.kind.IsRequest())
			assert.Equal(t, tt.success, tt.kind.Success())
			assert.Equal(t, tt.op, tt.kind.Op())
		})
	}

	assert.False(t, Kind(42).Valid())
	assert.Equal(t, "UNKNOWN", Kind(42).String())
}

func TestReplyKind(t *testing.T) {
	for _, op := range []audit.Op{audit.OpCreate, audit.OpRead, audit.OpUpdate, audit.OpDelete} {
		ok := replyKind(op, true)
		fail := replyKind(op, false)
		assert.Equal(t, op, ok.Op())
		assert.Equal(t, op, fail.Op())
		assert.True(t, ok.Success())
		assert.False(t, fail.Success())
		assert.Equal(t, op, requestKind(op).Op())
	}
}
