package quorum

import (
	"testing"
)

// TestDecide_SuccessIffAcksGEQRequired tests that a tally succeeds iff acks >= required
func TestDecide_SuccessIffAcksGEQRequired(t *testing.T) {
	tests := []struct {
		name     string
		acks     int
		fails    int
		required int
		total    int
		want     Decision
	}{
		{"2 of 3, 2 acks", 2, 0, 2, 3, Succeeded},
		{"2 of 3, 2 acks 1 fail", 2, 1, 2, 3, Succeeded},
		{"2 of 3, 1 ack", 1, 0, 2, 3, Pending},
		{"2 of 3, 1-1", 1, 1, 2, 3, Pending},
		{"2 of 3, 2 fails", 0, 2, 2, 3, Failed},
		{"2 of 3, 1 ack 2 fails", 1, 2, 2, 3, Failed},
		{"3 of 3, 2 acks", 2, 0, 3, 3, Pending},
		{"3 of 3, 1 fail", 2, 1, 3, 3, Failed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.acks, tt.fails, tt.required, tt.total); got != tt.want {
				t.Errorf("Decide(%d, %d, %d, %d) = %v, want %v", tt.acks, tt.fails, tt.required, tt.total, got, tt.want)
			}
		})
	}
}

// TestDecide_ExhaustiveNeverBoth tests that no reachable tally is both decided ways
// and that every complete tally is decided
func TestDecide_ExhaustiveNeverBoth(t *testing.T) {
	const total, required = 3, 2

	for acks := 0; acks <= total; acks++ {
		for fails := 0; acks+fails <= total; fails++ {
			d := Decide(acks, fails, required, total)
			if acks+fails == total && d == Pending {
				t.Errorf("complete tally %d/%d left pending", acks, fails)
			}
			if d == Succeeded && acks < required {
				t.Errorf("success with only %d acks", acks)
			}
			if d == Failed && acks >= required {
				t.Errorf("failure despite %d acks", acks)
			}
		}
	}
}
