package mathx

import "testing"

func TestClamp(t *testing.T) {
	if Clamp(-5, 0, 10) != 0 || Clamp(15, 0, 10) != 10 || Clamp(7, 0, 10) != 7 {
		t.Fatal("Clamp failed")
	}
	if Clamp(5.0, 10.0, 0.0) != 5.0 {
		t.Fatal("Clamp with swapped bounds failed")
	}
	if Max(2, 3) != 3 || Max(0, -0.5) != 0 || Abs(-4) != 4 || Abs(int32(9)) != 9 {
		t.Fatal("Max/Abs failed")
	}
}

func TestNormDeg(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0}, {359.5, 359.5}, {360, 0}, {-22.5, 337.5}, {742.5, 22.5},
	}
	for _, c := range cases {
		if got := NormDeg(c.in); got != c.want {
			t.Errorf("NormDeg(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestMean(t *testing.T) {
	if Mean([]uint16{}) != 0 {
		t.Fatal("Mean(empty) != 0")
	}
	if Mean([]uint16{1, 2, 3, 4}) != 2.5 {
		t.Fatal("Mean wrong")
	}
}
