package l2vision

import "testing"

func TestMask_SetAndCount(t *testing.T) {
	m := NewMask(4, 3)
	m.Set(0, 0, true)
	m.Set(3, 2, true)
	m.Set(-1, 0, true)
	m.Set(4, 0, true)
	m.Set(0, 3, true)

	if got := m.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
	if !m.IsSet(3, 2) {
		t.Error("IsSet(3,2) = false, want true")
	}
	if m.IsSet(-1, 0) || m.IsSet(0, 99) {
		t.Error("out-of-range pixels should read as unset")
	}
}

func TestMask_Inverted(t *testing.T) {
	m := NewMask(2, 2)
	m.Set(1, 1, true)
	inv := m.Inverted()
	if inv.Count() != 3 {
		t.Fatalf("Inverted().Count() = %d, want 3", inv.Count())
	}
	if inv.IsSet(1, 1) {
		t.Error("inverted mask kept the set pixel")
	}
	if m.Count() != 1 {
		t.Error("Inverted modified the receiver")
	}
}
