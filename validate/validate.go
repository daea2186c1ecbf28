// Package validate checks reduce-scatter results against a seeded fill
// pattern and compares point-to-point views by digest.
package validate

import (
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/lightstep/commbench/dtype"
)

// ScatterPartition returns how many result elements each rank receives.
// With fewer elements than ranks the first ranks get one each; otherwise
// the remainder goes to the lowest ranks.
func ScatterPartition(elements, ranks int) []int {
	counts := make([]int, ranks)
	if ranks < 1 || elements < 1 {
		return counts
	}
	if elements < ranks {
		for i := 0; i < elements; i++ {
			counts[i] = 1
		}
		return counts
	}
	portion, remainder := elements/ranks, elements%ranks
	for i := range counts {
		counts[i] = portion
		if i < remainder {
			counts[i]++
		}
	}
	return counts
}

// Displacements returns the first global position owned by each rank.
func Displacements(counts []int) []int {
	displs := make([]int, len(counts))
	for i := 1; i < len(counts); i++ {
		displs[i] = displs[i-1] + counts[i-1]
	}
	return displs
}

// Pattern produces the value rank contributes at pos in iteration iter.
type Pattern interface {
	Value(rank, iter, pos int) float64
}

// cyclePeriod is the number of distinct multipliers Cyclic uses.
const cyclePeriod = 16

type Cyclic struct{}

func (Cyclic) Value(rank, iter, pos int) float64 {
	return float64((rank + 1) * (1 + (pos+iter)%cyclePeriod))
}

type Constant struct{}

func (Constant) Value(rank, _, _ int) float64 {
	return float64(rank + 1)
}

func ParsePattern(name string) (Pattern, error) {
	switch name {
	case "", "cyclic":
		return Cyclic{}, nil
	case "constant":
		return Constant{}, nil
	}
	return nil, fmt.Errorf("unknown fill pattern %q", name)
}

// ReduceScatter knows how send buffers were filled and therefore what
// every received element has to be.
type ReduceScatter struct {
	Type      dtype.Type
	Pattern   Pattern
	Tolerance float64
}

// Fill writes this rank's contribution for iter into the first size
// elements of send and zeroes recv.
func (v ReduceScatter) Fill(send, recv []byte, size, rank, iter int) {
	for i := range recv {
		recv[i] = 0
	}
	for pos := 0; pos < size; pos++ {
		v.Type.Set(send, pos, v.Pattern.Value(rank, iter, pos))
	}
}

// Expected is the sum over all ranks at global position pos.
func (v ReduceScatter) Expected(ranks, iter, pos int) float64 {
	sum := 0.0
	for r := 0; r < ranks; r++ {
		sum += v.Pattern.Value(r, iter, pos)
	}
	return sum
}

// Peak is the largest sum any position can expect across iterations.
func (v ReduceScatter) Peak(ranks int) float64 {
	peak := 0.0
	for iter := 0; iter < cyclePeriod; iter++ {
		peak = math.Max(peak, v.Expected(ranks, iter, 0))
	}
	return peak
}

// Representable fails when the sums of ranks contributions overflow the
// element type.
func (v ReduceScatter) Representable(ranks int) error {
	if peak := v.Peak(ranks); peak > v.Type.Max() {
		return fmt.Errorf("%s cannot hold sums up to %v from %d ranks", v.Type.Name(), peak, ranks)
	}
	return nil
}

// tolerance widens the configured absolute tolerance to the rounding a
// rank-by-rank sum of want can accumulate in the element type.
func (v ReduceScatter) tolerance(want float64, ranks int) float64 {
	return math.Max(v.Tolerance, float64(ranks)*v.Type.Epsilon()*math.Abs(want))
}

// Validate returns the number of elements of recv that differ from the
// expected sum by more than the tolerance.
func (v ReduceScatter) Validate(recv []byte, size int, counts []int, rank, ranks, iter int) int {
	if rank >= len(counts) || counts[rank] == 0 {
		return 0
	}
	start := Displacements(counts)[rank]
	errors := 0
	for i := 0; i < counts[rank]; i++ {
		want := v.Expected(ranks, iter, start+i)
		if got := v.Type.Get(recv, i); math.Abs(got-want) > v.tolerance(want, ranks) || math.IsNaN(got) {
			errors++
		}
	}
	return errors
}

// Digest identifies the bytes a layout view carries.
func Digest(view []byte) [blake2b.Size256]byte {
	return blake2b.Sum256(view)
}

// SameContent reports whether two packed views are byte-identical.
func SameContent(a, b []byte) bool {
	return Digest(a) == Digest(b)
}
