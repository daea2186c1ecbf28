package config

import (
	"errors"
	"io"
	"os"
	"strconv"

	ini "github.com/lars-t-hansen/ini"

	"github.com/lightstep/commbench/buffer"
	"github.com/lightstep/commbench/common"
	"github.com/lightstep/commbench/env"
)

type field struct {
	f    *ini.Field
	name string
	set  func(o *Options, v string) error
}

func intSetter(dst func(*Options) *int) func(*Options, string) error {
	return func(o *Options, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(o) = n
		return nil
	}
}

func floatSetter(dst func(*Options) *float64) func(*Options, string) error {
	return func(o *Options, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(o) = f
		return nil
	}
}

func boolSetter(dst func(*Options) *bool) func(*Options, string) error {
	return func(o *Options, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(o) = b
		return nil
	}
}

func stringSetter(dst func(*Options) *string) func(*Options, string) error {
	return func(o *Options, v string) error {
		*dst(o) = v
		return nil
	}
}

func newParser() (func(io.Reader) (*ini.Store, error), []field) {
	p := ini.NewParser()
	var fields []field
	add := func(f *ini.Field, name string, set func(*Options, string) error) {
		fields = append(fields, field{f: f, name: name, set: set})
	}

	b := p.AddSection("benchmark")
	add(b.AddString("title"), "title", stringSetter(func(o *Options) *string { return &o.Title }))
	add(b.AddString("min-message-size"), "min-message-size", intSetter(func(o *Options) *int { return &o.MinMessageSize }))
	add(b.AddString("max-message-size"), "max-message-size", intSetter(func(o *Options) *int { return &o.MaxMessageSize }))
	add(b.AddString("large-message-size"), "large-message-size", intSetter(func(o *Options) *int { return &o.LargeMessageSize }))
	add(b.AddString("iterations"), "iterations", intSetter(func(o *Options) *int { return &o.Iterations }))
	add(b.AddString("iterations-large"), "iterations-large", intSetter(func(o *Options) *int { return &o.IterationsLarge }))
	add(b.AddString("skip"), "skip", intSetter(func(o *Options) *int { return &o.Skip }))
	add(b.AddString("skip-large"), "skip-large", intSetter(func(o *Options) *int { return &o.SkipLarge }))
	add(b.AddString("dt-block-size"), "dt-block-size", intSetter(func(o *Options) *int { return &o.DTBlockSize }))
	add(b.AddString("dt-stride-size"), "dt-stride-size", intSetter(func(o *Options) *int { return &o.DTStrideSize }))
	add(b.AddString("warmup-validation"), "warmup-validation", intSetter(func(o *Options) *int { return &o.WarmupValidation }))
	add(b.AddString("validate"), "validate", boolSetter(func(o *Options) *bool { return &o.Validate }))
	add(b.AddString("validation-tolerance"), "validation-tolerance", floatSetter(func(o *Options) *float64 { return &o.ValidationTolerance }))
	add(b.AddString("pattern"), "pattern", stringSetter(func(o *Options) *string { return &o.Pattern }))
	add(b.AddString("datatype"), "datatype", stringSetter(func(o *Options) *string { return &o.Datatype }))
	add(b.AddString("accel"), "accel", func(o *Options, v string) error {
		k, err := buffer.ParseKind(v)
		o.Accel = k
		return err
	})
	add(b.AddString("graph"), "graph", boolSetter(func(o *Options) *bool { return &o.Graph }))
	add(b.AddString("num-polls"), "num-polls", intSetter(func(o *Options) *int { return &o.NumPolls }))
	add(b.AddString("max-mem-limit"), "max-mem-limit", intSetter(func(o *Options) *int { return &o.MaxMemLimit }))
	add(b.AddString("ranks"), "ranks", intSetter(func(o *Options) *int { return &o.Ranks }))
	add(b.AddString("transport"), "transport", stringSetter(func(o *Options) *string { return &o.Transport }))

	c := p.AddSection("calibration")
	add(c.AddString("time-slice"), "time-slice", func(o *Options, v string) error {
		d, err := common.ParseDuration(v)
		o.Calibration.TimeSlice = d
		return err
	})
	add(c.AddString("rounds"), "rounds", intSetter(func(o *Options) *int { return &o.Calibration.Rounds }))
	add(c.AddString("tolerance"), "tolerance", floatSetter(func(o *Options) *float64 { return &o.Calibration.Tolerance }))
	add(c.AddString("min-calibrations"), "min-calibrations", intSetter(func(o *Options) *int { return &o.Calibration.MinCalibrations }))
	add(c.AddString("max-calibrations"), "max-calibrations", intSetter(func(o *Options) *int { return &o.Calibration.MaxCalibrations }))

	r := p.AddSection("report")
	add(r.AddString("full"), "full", boolSetter(func(o *Options) *bool { return &o.Report.Full }))
	add(r.AddString("json-file"), "json-file", stringSetter(func(o *Options) *string { return &o.Report.JSONFile }))
	add(r.AddString("sqlite-file"), "sqlite-file", stringSetter(func(o *Options) *string { return &o.Report.SQLiteFile }))
	add(r.AddString("postgres-url"), "postgres-url", stringSetter(func(o *Options) *string { return &o.Report.PostgresURL }))
	add(r.AddString("kafka-broker"), "kafka-broker", stringSetter(func(o *Options) *string { return &o.Report.KafkaBroker }))
	add(r.AddString("kafka-topic"), "kafka-topic", stringSetter(func(o *Options) *string { return &o.Report.KafkaTopic }))
	add(r.AddString("bucket"), "bucket", stringSetter(func(o *Options) *string { return &o.Report.Bucket }))
	add(r.AddString("graph-dir"), "graph-dir", stringSetter(func(o *Options) *string { return &o.Report.GraphDir }))

	t := p.AddSection("tracing")
	add(t.AddString("access-token"), "access-token", stringSetter(func(o *Options) *string { return &o.Tracing.AccessToken }))
	add(t.AddString("collector-host"), "collector-host", stringSetter(func(o *Options) *string { return &o.Tracing.CollectorHost }))
	add(t.AddString("collector-port"), "collector-port", intSetter(func(o *Options) *int { return &o.Tracing.CollectorPort }))
	add(t.AddString("plaintext"), "plaintext", boolSetter(func(o *Options) *bool { return &o.Tracing.Plaintext }))
	return p.Parse, fields
}

// Load applies an ini document on top of the defaults for kind.
func Load(r io.Reader, kind Kind) (Options, error) {
	o := Defaults(kind)
	parse, fields := newParser()
	store, err := parse(r)
	if err != nil {
		return o, common.Wrap(common.ConfigurationError, "parse", err)
	}
	for _, f := range fields {
		if !f.f.Present(store) {
			continue
		}
		v := os.ExpandEnv(f.f.StringVal(store))
		if err := f.set(&o, v); err != nil {
			return o, common.Errorf(common.ConfigurationError, "parse", "%s = %q: %v", f.name, v, err)
		}
	}
	return o, nil
}

// LoadFile is Load on a file. A missing file yields the defaults.
func LoadFile(path string, kind Kind) (Options, error) {
	input, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			env.Print("No config file ", path, ", using defaults")
			return Defaults(kind), nil
		}
		return Defaults(kind), common.Wrap(common.ConfigurationError, "open", err)
	}
	defer input.Close()
	return Load(input, kind)
}

// FromEnv loads BENCHMARK_CONFIG_FILE, applies the environment
// overrides, and validates the result.
func FromEnv(kind Kind) (Options, error) {
	o, err := LoadFile(env.TestConfigFile, kind)
	if err != nil {
		return o, err
	}
	o, err = applyEnv(o)
	if err != nil {
		return o, err
	}
	return o, o.Check()
}

func applyEnv(o Options) (Options, error) {
	if env.TestTitle != "untitled" {
		o.Title = env.TestTitle
	}
	if env.TestStorageBucket != "" {
		o.Report.Bucket = env.TestStorageBucket
	}
	if env.TestTransport != "" {
		o.Transport = env.TestTransport
	}
	if env.TestAccessToken != "" {
		o.Tracing.AccessToken = env.TestAccessToken
	}
	if env.TestNP != "" {
		np, err := strconv.Atoi(env.TestNP)
		if err != nil {
			return o, common.Errorf(common.ConfigurationError, "env", "%s=%q: %v", env.NPVar, env.TestNP, err)
		}
		o.Ranks = np
	}
	return o, nil
}
