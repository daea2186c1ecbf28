package report

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/lightstep/commbench/common"
)

type writeFunc func(ctx context.Context, name string, data []byte) error

// bucketSink collects JSON lines and uploads them as one object when
// closed.
type bucketSink struct {
	writeTo writeFunc
	closer  func() error
	name    string
	buf     bytes.Buffer
}

func newBucketSink(ctx context.Context, writeTo writeFunc, closer func() error) (*bucketSink, error) {
	// Test the storage service, auth, etc.
	if err := writeTo(ctx, "test-empty", []byte{}); err != nil {
		return nil, reportErr("gcs", err)
	}
	return &bucketSink{writeTo: writeTo, closer: closer}, nil
}

func (s *bucketSink) add(rec common.Record) error {
	line, err := encodeLine(rec)
	if err != nil {
		return reportErr("gcs", err)
	}
	s.buf.Write(line)
	return nil
}

func (s *bucketSink) Preamble(h common.Header) error {
	s.name = path.Join(h.Title, h.Benchmark, fmt.Sprintf("%d.json", h.StartedUnixNanos))
	return s.add(headerRecord(h))
}

func (s *bucketSink) Collective(r common.CollectiveResult) error {
	return s.add(collectiveRecord(r))
}

func (s *bucketSink) PointToPoint(r common.PointResult) error {
	return s.add(pointRecord(r))
}

func (s *bucketSink) Samples(series common.SampleSeries) error {
	return s.add(samplesRecord(series))
}

func (s *bucketSink) Close() error {
	var err error
	if s.name != "" {
		err = s.writeTo(context.Background(), s.name, s.buf.Bytes())
	}
	if cerr := s.closer(); err == nil {
		err = cerr
	}
	return reportErr("gcs", err)
}

// NewGCS uploads the run to bucket using the default Google credentials.
func NewGCS(ctx context.Context, bucket string) (Sink, error) {
	gcpClient, err := google.DefaultClient(ctx, storage.ScopeFullControl)
	if err != nil {
		return nil, reportErr("gcs", fmt.Errorf("GCP default client: %w", err))
	}
	client, err := storage.NewClient(ctx, option.WithHTTPClient(gcpClient))
	if err != nil {
		return nil, reportErr("gcs", fmt.Errorf("GCP storage client: %w", err))
	}
	b := client.Bucket(bucket)
	writeTo := func(ctx context.Context, name string, data []byte) error {
		w := b.Object(name).NewWriter(ctx)
		if _, err := w.Write(data); err != nil {
			w.Close()
			return fmt.Errorf("couldn't write storage bucket: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("couldn't close storage bucket: %w", err)
		}
		return nil
	}
	s, err := newBucketSink(ctx, writeTo, client.Close)
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}
