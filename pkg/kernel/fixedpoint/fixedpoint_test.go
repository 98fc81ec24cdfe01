package fixedpoint

import "testing"

func TestRoundTrip(t *testing.T) {
	got := ToIntTrunc(FromInt(59))
	if got != 59 {
		t.Fatalf("FromInt/ToIntTrunc(59) = %d, want 59", got)
	}
}

func TestToIntRound(t *testing.T) {
	cases := []struct {
		in   T
		want int
	}{
		{FromInt(2), 2},
		{Add(FromInt(2), T(F/2)), 3},  // 2.5 rounds away from zero to 3
		{Sub(T(0), T(F/2)), -1},       // -0.5 rounds away from zero to -1
		{AddInt(T(0), -2), -2},
	}
	for _, c := range cases {
		if got := ToIntRound(c.in); got != c.want {
			t.Errorf("ToIntRound(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestArithmetic(t *testing.T) {
	a := FromInt(59)
	b := FromInt(60)
	sum := Add(a, b)
	if ToIntTrunc(sum) != 119 {
		t.Fatalf("Add(59,60) = %d", ToIntTrunc(sum))
	}

	q := Div(FromInt(59), FromInt(60))
	if q <= 0 || q >= F {
		t.Fatalf("Div(59,60) = %d, want in (0,F)", q)
	}

	prod := MulInt(q, 60)
	if ToIntRound(prod) != 59 {
		t.Fatalf("MulInt(59/60, 60) rounds to %d, want 59", ToIntRound(prod))
	}
}

func TestDivInt(t *testing.T) {
	got := ToIntTrunc(DivInt(FromInt(100), 4))
	if got != 25 {
		t.Fatalf("DivInt(100,4) = %d, want 25", got)
	}
}
