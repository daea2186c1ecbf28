package report

import (
	"bufio"
	"io"
	"os"

	"github.com/sugawarayuuta/sonnet"

	"github.com/lightstep/commbench/common"
)

func headerRecord(h common.Header) common.Record {
	return common.Record{Kind: common.RecordHeader, Header: &h}
}

func collectiveRecord(r common.CollectiveResult) common.Record {
	return common.Record{Kind: common.RecordCollective, Collective: &r}
}

func pointRecord(r common.PointResult) common.Record {
	return common.Record{Kind: common.RecordPoint, Point: &r}
}

func samplesRecord(s common.SampleSeries) common.Record {
	return common.Record{Kind: common.RecordSamples, Samples: &s}
}

// encodeLine returns rec as one line of JSON.
func encodeLine(rec common.Record) ([]byte, error) {
	data, err := sonnet.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// recordWriter adapts a per-record function to the Sink interface.
type recordWriter struct {
	write func(common.Record) error
	close func() error
}

func (w recordWriter) Preamble(h common.Header) error {
	return w.write(headerRecord(h))
}

func (w recordWriter) Collective(r common.CollectiveResult) error {
	return w.write(collectiveRecord(r))
}

func (w recordWriter) PointToPoint(r common.PointResult) error {
	return w.write(pointRecord(r))
}

func (w recordWriter) Samples(s common.SampleSeries) error {
	return w.write(samplesRecord(s))
}

func (w recordWriter) Close() error {
	return w.close()
}

// NewJSON writes JSON lines to w. Closing the sink closes w if it is an
// io.Closer.
func NewJSON(w io.Writer) Sink {
	bw := bufio.NewWriter(w)
	return recordWriter{
		write: func(rec common.Record) error {
			line, err := encodeLine(rec)
			if err != nil {
				return reportErr("json", err)
			}
			_, err = bw.Write(line)
			return reportErr("json", err)
		},
		close: func() error {
			err := bw.Flush()
			if c, ok := w.(io.Closer); ok {
				if cerr := c.Close(); err == nil {
					err = cerr
				}
			}
			return reportErr("json", err)
		},
	}
}

// NewJSONFile appends JSON lines to path.
func NewJSONFile(path string) (Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, reportErr("json", err)
	}
	return NewJSON(f), nil
}

// ReadJSON decodes JSON lines produced by the json sink.
func ReadJSON(r io.Reader) ([]common.Record, error) {
	var recs []common.Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec common.Record
		if err := sonnet.Unmarshal(line, &rec); err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, scanner.Err()
}
