package report

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lightstep/commbench/common"
)

// NewKafka produces one JSON message per record to topic.
func NewKafka(ctx context.Context, broker, topic string) (Sink, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, reportErr("kafka", err)
	}
	if err := cl.Ping(ctx); err != nil {
		cl.Close()
		return nil, reportErr("kafka", err)
	}
	return recordWriter{
		write: func(rec common.Record) error {
			value, err := encodeLine(rec)
			if err != nil {
				return reportErr("kafka", err)
			}
			benchmark, _, _ := rec.Key()
			r := &kgo.Record{Topic: topic, Key: []byte(benchmark), Value: value}
			return reportErr("kafka", cl.ProduceSync(context.Background(), r).FirstErr())
		},
		close: func() error {
			cl.Close()
			return nil
		},
	}, nil
}
