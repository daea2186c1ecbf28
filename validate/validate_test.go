package validate

import (
	"testing"

	"github.com/lightstep/commbench/dtype"
	"github.com/lightstep/commbench/mpi"
)

func TestScatterPartition(t *testing.T) {
	for s := 0; s < 200; s++ {
		for r := 1; r < 17; r++ {
			counts := ScatterPartition(s, r)
			sum := 0
			for i, c := range counts {
				if c < 0 {
					t.Fatalf("S=%d R=%d: rank %d count %d", s, r, i, c)
				}
				if i > 0 && c > counts[i-1] {
					t.Fatalf("S=%d R=%d: remainder not on lowest ranks %v", s, r, counts)
				}
				sum += c
			}
			if sum != s {
				t.Fatalf("S=%d R=%d: counts %v sum to %d", s, r, counts, sum)
			}
		}
	}
}

func TestScatterPartitionExamples(t *testing.T) {
	for _, tc := range []struct {
		s, r int
		want []int
	}{
		{16, 4, []int{4, 4, 4, 4}},
		{10, 4, []int{3, 3, 2, 2}},
		{3, 5, []int{1, 1, 1, 0, 0}},
		{1, 2, []int{1, 0}},
	} {
		got := ScatterPartition(tc.s, tc.r)
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Errorf("ScatterPartition(%d, %d) = %v, want %v", tc.s, tc.r, got, tc.want)
				break
			}
		}
	}
}

// reduced computes what a correct reduce-scatter leaves on rank.
func reduced(v ReduceScatter, size, rank, ranks, iter int, counts []int) []byte {
	send := make([][]byte, ranks)
	for r := range send {
		send[r] = make([]byte, size*v.Type.Size())
		v.Fill(send[r], nil, size, r, iter)
	}
	start := Displacements(counts)[rank]
	es := v.Type.Size()
	recv := make([]byte, counts[rank]*es)
	copy(recv, send[0][start*es:])
	for r := 1; r < ranks; r++ {
		dtype.Sum(v.Type, recv, send[r][start*es:], counts[rank])
	}
	return recv
}

func TestConstantExpected(t *testing.T) {
	v := ReduceScatter{Type: dtype.Float32, Pattern: Constant{}, Tolerance: 1e-4}
	for ranks := 1; ranks < 9; ranks++ {
		want := float64(ranks * (ranks + 1) / 2)
		if got := v.Expected(ranks, 3, 17); got != want {
			t.Errorf("R=%d: expected %v, want %v", ranks, got, want)
		}
	}
}

func TestValidateCorrect(t *testing.T) {
	for _, pattern := range []Pattern{Cyclic{}, Constant{}} {
		for _, typ := range []dtype.Type{dtype.Float32, dtype.Float64, dtype.Float16} {
			v := ReduceScatter{Type: typ, Pattern: pattern, Tolerance: 1e-4}
			const size, ranks = 37, 4
			counts := ScatterPartition(size, ranks)
			for iter := 0; iter < 20; iter++ {
				for rank := 0; rank < ranks; rank++ {
					recv := reduced(v, size, rank, ranks, iter, counts)
					if n := v.Validate(recv, size, counts, rank, ranks, iter); n != 0 {
						t.Errorf("%T %s iter %d rank %d: %d errors", pattern, typ.Name(), iter, rank, n)
					}
				}
			}
		}
	}
}

func TestValidateSingleCorruption(t *testing.T) {
	v := ReduceScatter{Type: dtype.Float32, Pattern: Constant{}, Tolerance: 1e-4}
	const size, ranks = 16, 4
	counts := ScatterPartition(size, ranks)
	recv := reduced(v, size, 2, ranks, 0, counts)
	v.Type.Set(recv, 1, v.Type.Get(recv, 1)+1)
	if n := v.Validate(recv, size, counts, 2, ranks, 0); n != 1 {
		t.Errorf("%d errors, want 1", n)
	}
}

func TestValidateWrongIteration(t *testing.T) {
	v := ReduceScatter{Type: dtype.Float64, Pattern: Cyclic{}, Tolerance: 1e-4}
	counts := ScatterPartition(8, 2)
	recv := reduced(v, 8, 0, 2, 1, counts)
	if n := v.Validate(recv, 8, counts, 0, 2, 2); n == 0 {
		t.Error("stale iteration passed validation")
	}
}

func TestValidateEmptyPartition(t *testing.T) {
	v := ReduceScatter{Type: dtype.Float32, Pattern: Cyclic{}, Tolerance: 1e-4}
	counts := ScatterPartition(2, 4)
	if n := v.Validate(nil, 2, counts, 3, 4, 0); n != 0 {
		t.Errorf("empty partition reported %d errors", n)
	}
}

func TestFillResetsRecv(t *testing.T) {
	v := ReduceScatter{Type: dtype.Float32, Pattern: Constant{}}
	send := make([]byte, 16)
	recv := []byte{1, 2, 3, 4}
	v.Fill(send, recv, 4, 1, 0)
	for i, b := range recv {
		if b != 0 {
			t.Fatalf("recv[%d] = %d after fill", i, b)
		}
	}
	if got := v.Type.Get(send, 3); got != 2 {
		t.Errorf("send[3] = %v, want 2", got)
	}
}

func TestValidateEndToEnd(t *testing.T) {
	const ranks, size = 4, 16
	v := ReduceScatter{Type: dtype.Float32, Pattern: Constant{}, Tolerance: 1e-4}
	counts := ScatterPartition(size, ranks)
	errs := mpi.NewLocalWorld(ranks).Run(func(c mpi.Comm) error {
		send := make([]byte, size*4)
		recv := make([]byte, (size/ranks+1)*4)
		v.Fill(send, recv, size, c.Rank(), 0)
		req, err := c.IreduceScatter(send, recv, counts, v.Type)
		if err != nil {
			return err
		}
		if err := req.Wait(); err != nil {
			return err
		}
		for i := 0; i < counts[c.Rank()]; i++ {
			if got := v.Type.Get(recv, i); got != 10 {
				t.Errorf("rank %d element %d = %v, want 10", c.Rank(), i, got)
			}
		}
		if n := v.Validate(recv, size, counts, c.Rank(), ranks, 0); n != 0 {
			t.Errorf("rank %d: %d errors", c.Rank(), n)
		}
		return nil
	})
	for _, err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}

func TestSameContent(t *testing.T) {
	a := []byte("aaaaaaaa")
	b := []byte("aaaaaaaa")
	if !SameContent(a, b) {
		t.Error("identical views differ")
	}
	b[3] = 'b'
	if SameContent(a, b) {
		t.Error("different views match")
	}
}

func TestParsePattern(t *testing.T) {
	if p, err := ParsePattern("constant"); err != nil || p != (Constant{}) {
		t.Errorf("constant: %v %v", p, err)
	}
	if _, err := ParsePattern("random"); err == nil {
		t.Error("unknown pattern accepted")
	}
}

func TestValidateHalfManyRanks(t *testing.T) {
	v := ReduceScatter{Type: dtype.Float16, Pattern: Cyclic{}, Tolerance: 1e-4}
	const size, ranks = 64, 16
	counts := ScatterPartition(size, ranks)
	for iter := 0; iter < cyclePeriod; iter++ {
		for rank := 0; rank < ranks; rank++ {
			recv := reduced(v, size, rank, ranks, iter, counts)
			if n := v.Validate(recv, size, counts, rank, ranks, iter); n != 0 {
				t.Errorf("iter %d rank %d: %d errors", iter, rank, n)
			}
		}
	}
	recv := reduced(v, size, 3, ranks, 0, counts)
	v.Type.Set(recv, 0, v.Type.Get(recv, 0)+256)
	if n := v.Validate(recv, size, counts, 3, ranks, 0); n != 1 {
		t.Errorf("%d errors after corruption, want 1", n)
	}
}

func TestRepresentable(t *testing.T) {
	if got := (ReduceScatter{Type: dtype.Float32, Pattern: Constant{}}).Peak(4); got != 10 {
		t.Errorf("constant peak = %v, want 10", got)
	}
	half := ReduceScatter{Type: dtype.Float16, Pattern: Cyclic{}}
	if got := half.Peak(16); got != 16*136 {
		t.Errorf("cyclic peak = %v, want %v", got, 16*136)
	}
	for _, test := range []struct {
		v     ReduceScatter
		ranks int
		ok    bool
	}{
		{half, 16, true},
		{half, 89, true},
		{half, 90, false},
		{ReduceScatter{Type: dtype.Float32, Pattern: Cyclic{}}, 90, true},
	} {
		if err := test.v.Representable(test.ranks); (err == nil) != test.ok {
			t.Errorf("%s R=%d: %v", test.v.Type.Name(), test.ranks, err)
		}
	}
}
