package align

import (
	"errors"
	"testing"
	"time"
)

func sec(n int64) time.Time {
	return time.Unix(n, 0).UTC()
}

func secs(ns ...int64) []time.Time {
	out := make([]time.Time, len(ns))
	for i, n := range ns {
		out[i] = sec(n)
	}
	return out
}

func TestFindClosest(t *testing.T) {
	tests := []struct {
		name   string
		search []time.Time
		pivot  time.Time
		want   time.Time
	}{
		{
			name:   "exact match",
			search: secs(10, 20, 30),
			pivot:  sec(20),
			want:   sec(20),
		},
		{
			name:   "below minimum clamps to minimum",
			search: secs(10, 20, 30),
			pivot:  sec(5),
			want:   sec(10),
		},
		{
			name:   "above maximum clamps to maximum",
			search: secs(10, 20, 30),
			pivot:  sec(100),
			want:   sec(30),
		},
		{
			name:   "nearer lower neighbour",
			search: secs(10, 20, 30),
			pivot:  sec(13),
			want:   sec(10),
		},
		{
			name:   "nearer upper neighbour",
			search: secs(10, 20, 30),
			pivot:  sec(17),
			want:   sec(20),
		},
		{
			name:   "tie resolves to earlier element",
			search: secs(10, 20, 30),
			pivot:  sec(15),
			want:   sec(10),
		},
		{
			name:   "single element far away",
			search: secs(10),
			pivot:  sec(10000),
			want:   sec(10),
		},
		{
			name:   "duplicate values",
			search: secs(10, 20, 20, 30),
			pivot:  sec(21),
			want:   sec(20),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindClosest(tt.search, tt.pivot)
			if err != nil {
				t.Fatalf("FindClosest: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("FindClosest = %v, want %v", got.Unix(), tt.want.Unix())
			}
		})
	}
}

func TestFindClosest_EmptySearch(t *testing.T) {
	_, err := FindClosest(nil, sec(5))
	if !errors.Is(err, ErrEmptySearch) {
		t.Fatalf("err = %v, want ErrEmptySearch", err)
	}
}

// The returned element must never be further from the pivot than any other
// element of the search array.
func TestFindClosest_Optimality(t *testing.T) {
	search := secs(3, 7, 12, 12, 19, 40, 41, 90)
	for p := int64(0); p <= 100; p++ {
		pivot := sec(p)
		got, err := FindClosest(search, pivot)
		if err != nil {
			t.Fatalf("FindClosest(%d): %v", p, err)
		}
		gotDist := absDuration(got.Sub(pivot))
		for _, s := range search {
			if absDuration(s.Sub(pivot)) < gotDist {
				t.Fatalf("pivot %d: returned %d but %d is closer", p, got.Unix(), s.Unix())
			}
		}
	}
}

func TestClosestWithinDistance(t *testing.T) {
	search := secs(10, 20, 30)

	// Distance exactly equal to the bound is a match.
	got, ok, err := ClosestWithinDistance(search, sec(13), 3*time.Second)
	if err != nil {
		t.Fatalf("ClosestWithinDistance: %v", err)
	}
	if !ok || !got.Equal(sec(10)) {
		t.Errorf("got (%v, %v), want (10, true)", got.Unix(), ok)
	}

	// One second over the bound is not.
	_, ok, err = ClosestWithinDistance(search, sec(14), 3*time.Second)
	if err != nil {
		t.Fatalf("ClosestWithinDistance: %v", err)
	}
	if ok {
		t.Error("match beyond bound should be rejected")
	}
}

func TestAlign_Concrete(t *testing.T) {
	got, err := Align(secs(10, 20, 30), secs(5, 15, 25, 100))
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	want := secs(10, 10, 20, 30)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("got[%d] = %v, want %v", i, got[i].Unix(), want[i].Unix())
		}
	}
}

func TestAlignWithin_Concrete(t *testing.T) {
	got, err := AlignWithin(secs(10, 20, 30), secs(11, 25), 3*time.Second)
	if err != nil {
		t.Fatalf("AlignWithin: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].Matched || !got[0].Time.Equal(sec(10)) {
		t.Errorf("got[0] = %+v, want match at 10", got[0])
	}
	if got[1].Matched {
		t.Errorf("got[1] = %+v, want no match", got[1])
	}
}

// Align must tolerate unsorted input, without mutating it, and produce the
// same output on repeated runs.
func TestAlign_UnsortedInput(t *testing.T) {
	search := secs(30, 10, 20)
	pivots := secs(5, 15, 25, 100)

	first, err := Align(search, pivots)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	second, err := Align(search, pivots)
	if err != nil {
		t.Fatalf("Align (second run): %v", err)
	}

	want := secs(10, 10, 20, 30)
	for i := range want {
		if !first[i].Equal(want[i]) {
			t.Errorf("first[%d] = %v, want %v", i, first[i].Unix(), want[i].Unix())
		}
		if !first[i].Equal(second[i]) {
			t.Errorf("run mismatch at %d: %v vs %v", i, first[i].Unix(), second[i].Unix())
		}
	}

	if !search[0].Equal(sec(30)) || !search[1].Equal(sec(10)) || !search[2].Equal(sec(20)) {
		t.Error("Align mutated its search input")
	}
}

// Each output slot depends only on its own pivot.
func TestAlignWithin_OrderPreserved(t *testing.T) {
	search := secs(10, 20, 30)
	pivots := secs(25, 100, 5)

	got, err := AlignWithin(search, pivots, 10*time.Second)
	if err != nil {
		t.Fatalf("AlignWithin: %v", err)
	}
	if len(got) != len(pivots) {
		t.Fatalf("len = %d, want %d", len(got), len(pivots))
	}

	for i, p := range pivots {
		single, err := AlignWithin(search, []time.Time{p}, 10*time.Second)
		if err != nil {
			t.Fatalf("AlignWithin single: %v", err)
		}
		if single[0].Matched != got[i].Matched || (got[i].Matched && !single[0].Time.Equal(got[i].Time)) {
			t.Errorf("slot %d differs from standalone lookup: %+v vs %+v", i, got[i], single[0])
		}
	}
}

func TestAlignWithin_EmptySearch(t *testing.T) {
	_, err := AlignWithin(nil, secs(1), time.Second)
	if !errors.Is(err, ErrEmptySearch) {
		t.Fatalf("err = %v, want ErrEmptySearch", err)
	}
}
