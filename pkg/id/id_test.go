package id

import "testing"

func TestNextMonotonic(t *testing.T) {
	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		cur := g.Next()
		if cur.String() <= prev.String() {
			t.Fatalf("ids not increasing: %s then %s", prev, cur)
		}
		prev = cur
	}
}

func TestNextClockBackwards(t *testing.T) {
	g := NewGenerator()
	now := int64(5000)
	orig := NowMs
	NowMs = func() int64 { return now }
	defer func() { NowMs = orig }()

	a := g.Next()
	now = 4000 // clock went backwards
	b := g.Next()
	if b.String() <= a.String() {
		t.Fatalf("expected increasing id despite clock regression")
	}
}
