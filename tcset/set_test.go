// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tcset

import "testing"

func TestBasics(t *testing.T) {
	s := New()
	s.Add(1)
	s.Add(3)
	s.Add(5)
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	if !s.Contains(3) || s.Contains(4) {
		t.Fatal("Contains mismatch")
	}
	got := s.Slice()
	want := []ID{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("Slice() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Slice() = %v, want %v", got, want)
		}
	}
}

func TestCloneWithout(t *testing.T) {
	s := New()
	s.Add(1)
	s.Add(2)
	c := s.CloneWithout(1)
	if c.Contains(1) {
		t.Fatal("CloneWithout left id 1")
	}
	if !s.Contains(1) {
		t.Fatal("CloneWithout mutated original")
	}
}

// TestHashCapacityIndependent checks that two sets with equal contents but
// different internal capacities hash identically.
func TestHashCapacityIndependent(t *testing.T) {
	a := New()
	a.Add(2)

	b := New()
	b.Add(200) // forces a much larger backing array
	b.Remove(200)
	b.Add(2)

	if a.Hash() != b.Hash() {
		t.Fatalf("hash differs for equal-content sets of different capacity: %x != %x", a.Hash(), b.Hash())
	}
}

func TestUnion(t *testing.T) {
	a := New()
	a.Add(1)
	b := New()
	b.Add(2)
	a.Union(b)
	if !a.Contains(1) || !a.Contains(2) {
		t.Fatalf("union missing members")
	}
}
