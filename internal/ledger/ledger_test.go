package ledger

import "testing"

func TestLedgerAdvance(t *testing.T) {
	l := New()
	if got := l.Current(); got != 1 {
		t.Fatalf("Current() = %d, want 1", got)
	}
	if got := l.Advance(); got != 1 {
		t.Errorf("Advance() = %d, want 1", got)
	}
	if got := l.Current(); got != 2 {
		t.Errorf("Current() after Advance = %d, want 2", got)
	}
	if l.IsRetired(1) {
		t.Error("IsRetired(1) = true before Retire")
	}
	if !l.IsRetired(0) {
		t.Error("IsRetired(0) = false, want true")
	}
}

func TestLedgerDeferRunsOnRetire(t *testing.T) {
	l := New()
	var order []int

	l.Defer(1, func() { order = append(order, 1) })
	l.Advance()
	l.Defer(2, func() { order = append(order, 2) })
	l.Defer(1, func() { order = append(order, 3) })
	l.Advance()

	if got := l.Pending(); got != 3 {
		t.Fatalf("Pending() = %d, want 3", got)
	}

	if ran := l.Retire(1); ran != 2 {
		t.Errorf("Retire(1) ran %d, want 2", ran)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Errorf("order after Retire(1) = %v, want [1 3]", order)
	}

	if ran := l.Retire(2); ran != 1 {
		t.Errorf("Retire(2) ran %d, want 1", ran)
	}
	if got := l.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestLedgerDeferRetiredRunsImmediately(t *testing.T) {
	l := New()
	l.Advance()
	l.Retire(1)

	ran := false
	l.Defer(1, func() { ran = true })
	if !ran {
		t.Error("Defer on retired id did not run")
	}
	if got := l.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestLedgerRetireClampsToSubmitted(t *testing.T) {
	l := New()
	l.Advance()

	// ID 2 is still recording and cannot retire.
	l.Retire(5)
	if got := l.Completed(); got != 1 {
		t.Errorf("Completed() = %d, want 1", got)
	}

	l.Retire(0)
	if got := l.Completed(); got != 1 {
		t.Errorf("Completed() after backwards Retire = %d, want 1", got)
	}
}

func TestLedgerDrain(t *testing.T) {
	l := New()
	count := 0
	l.Defer(1, func() { count++ })
	l.Defer(1, func() { count++ })

	if got := l.Drain(); got != 2 {
		t.Errorf("Drain() = %d, want 2", got)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestResourceUse(t *testing.T) {
	tests := []struct {
		name string
		uses []ID
		want ID
	}{
		{"unused", nil, 0},
		{"single", []ID{3}, 3},
		{"monotonic", []ID{2, 5, 4}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Resource
			for _, id := range tt.uses {
				r.Use(id)
			}
			if got := r.LastUse(); got != tt.want {
				t.Errorf("LastUse() = %d, want %d", got, tt.want)
			}
		})
	}
}
