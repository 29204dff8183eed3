package cluster

import (
	"sort"
	"testing"

	"imagecull/internal/fingerprint"
)

func TestBKTree_FindWithinDistance(t *testing.T) {
	tree := newBKTree()
	values := []uint64{0x00, 0x01, 0x03, 0x0F, 0xFF}
	for i, v := range values {
		if err := tree.insert(fingerprint.MustNew([]uint64{v}, 8), i); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	if tree.size() != len(values) {
		t.Fatalf("size = %d, want %d", tree.size(), len(values))
	}

	tests := []struct {
		radius int
		want   []int
	}{
		{0, []int{0}},
		{1, []int{0, 1}},
		{2, []int{0, 1, 2}},
		{4, []int{0, 1, 2, 3}},
		{8, []int{0, 1, 2, 3, 4}},
	}
	for _, tt := range tests {
		got, err := tree.findWithinDistance(fingerprint.MustNew([]uint64{0x00}, 8), tt.radius)
		if err != nil {
			t.Fatalf("findWithinDistance failed: %v", err)
		}
		sort.Ints(got)
		if len(got) != len(tt.want) {
			t.Errorf("radius %d: got %v, want %v", tt.radius, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("radius %d: got %v, want %v", tt.radius, got, tt.want)
				break
			}
		}
	}
}

func TestBKTree_Empty(t *testing.T) {
	tree := newBKTree()
	got, err := tree.findWithinDistance(fingerprint.MustNew([]uint64{0}, 8), 3)
	if err != nil || got != nil {
		t.Errorf("empty tree returned %v, %v", got, err)
	}
	if tree.size() != 0 {
		t.Errorf("size = %d, want 0", tree.size())
	}
}

func TestBKTree_MixedLengths(t *testing.T) {
	tree := newBKTree()
	if err := tree.insert(fingerprint.MustNew([]uint64{0}, 8), 0); err != nil {
		t.Fatal(err)
	}
	if err := tree.insert(fingerprint.MustNew([]uint64{0}, 64), 1); err == nil {
		t.Error("expected error inserting a different length")
	}
}
