package dtype

import "testing"

func TestTypes(t *testing.T) {
	for _, tc := range []struct {
		name string
		size int
	}{
		{"float", 4},
		{"double", 8},
		{"half", 2},
	} {
		ty, err := Parse(tc.name)
		if err != nil {
			t.Fatal(err)
		}
		if ty.Size() != tc.size || ty.Name() != tc.name {
			t.Errorf("%s: size %d name %s", tc.name, ty.Size(), ty.Name())
		}
		buf := make([]byte, 4*ty.Size())
		Fill(ty, buf, 4, 3)
		other := make([]byte, len(buf))
		Fill(ty, other, 4, 7)
		Sum(ty, buf, other, 3)
		want := []float64{10, 10, 10, 3}
		for i, w := range want {
			if got := ty.Get(buf, i); got != w {
				t.Errorf("%s[%d] = %v, want %v", tc.name, i, got, w)
			}
		}
		if Len(ty, buf) != 4 {
			t.Errorf("%s: len %d", tc.name, Len(ty, buf))
		}
	}
}

func TestParseUnknown(t *testing.T) {
	if _, err := Parse("int128"); err == nil {
		t.Error("expected an error")
	}
}

func TestHalfPrecisionRounds(t *testing.T) {
	buf := make([]byte, 2)
	Float16.Set(buf, 0, 2049)
	if got := Float16.Get(buf, 0); got != 2048 {
		t.Errorf("2049 stored as %v", got)
	}
}

func TestFloat64s(t *testing.T) {
	vals := []float64{1.5, -2, 1e300}
	got := DecodeFloat64s(EncodeFloat64s(vals))
	for i := range vals {
		if got[i] != vals[i] {
			t.Errorf("%d: %v != %v", i, got[i], vals[i])
		}
	}
}
