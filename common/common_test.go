package common

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestStatsSummary(t *testing.T) {
	var s Stats
	for _, v := range []float64{5, 1, 4, 2, 3} {
		s.Update(v)
	}
	sum := s.Summary(C95)
	if sum.Count != 5 || sum.Min != 1 || sum.Max != 5 || sum.P50 != 3 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if math.Abs(sum.Mean-3) > 1e-12 {
		t.Errorf("mean %v", sum.Mean)
	}
	if !(sum.CLow < sum.Mean && sum.Mean < sum.CHigh) {
		t.Errorf("interval %v-%v does not contain mean", sum.CLow, sum.CHigh)
	}
}

func TestStatsSummaryEmpty(t *testing.T) {
	var s Stats
	if sum := s.Summary(C90); sum.Count != 0 || sum.Mean != 0 {
		t.Errorf("empty summary %+v", sum)
	}
	if s.Mean() != 0 {
		t.Errorf("empty mean %v", s.Mean())
	}
}

func TestErrorKinds(t *testing.T) {
	base := Errorf(ResourceError, "allocate", "out of memory")
	wrapped := fmt.Errorf("rank 3: %w", base)
	if k := KindOf(wrapped); k != ResourceError {
		t.Errorf("kind %v", k)
	}
	if k := KindOf(nil); k != NoError {
		t.Errorf("nil kind %v", k)
	}
	if k := KindOf(errors.New("broken pipe")); k != CommunicationError {
		t.Errorf("plain kind %v", k)
	}
	if again := Wrap(ConfigurationError, "x", wrapped); KindOf(again) != ResourceError {
		t.Errorf("Wrap replaced the kind: %v", again)
	}
	if Wrap(ConfigurationError, "x", nil) != nil {
		t.Errorf("Wrap(nil) != nil")
	}
}

func TestDurationJSON(t *testing.T) {
	d := Duration(1500 * 1000 * 1000)
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"1.5s"` {
		t.Fatalf("marshal %s", b)
	}
	var back Duration
	if err := back.UnmarshalJSON(b); err != nil {
		t.Fatal(err)
	}
	if back != d {
		t.Errorf("round trip %v != %v", back, d)
	}
}

func TestRecordKey(t *testing.T) {
	r := Record{Kind: RecordPoint, Point: &PointResult{Benchmark: "b", Size: 64, LatencyUs: 2.5}}
	if name, size, ok := r.Key(); !ok || name != "b" || size != 64 {
		t.Errorf("key %v %v %v", name, size, ok)
	}
	if r.Latency() != 2.5 {
		t.Errorf("latency %v", r.Latency())
	}
	if _, _, ok := (Record{Kind: RecordHeader, Header: &Header{}}).Key(); ok {
		t.Errorf("header has a key")
	}
}
