package report

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lightstep/commbench/common"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		benchmark TEXT, title TEXT, started BIGINT, ranks INTEGER,
		datatype TEXT, validate BOOLEAN, cpu_model TEXT, cpu_mhz DOUBLE PRECISION,
		cpu_cores INTEGER, mem_bytes BIGINT)`,
	`CREATE TABLE IF NOT EXISTS collective_results (
		benchmark TEXT, title TEXT, started BIGINT, size INTEGER,
		overall_us DOUBLE PRECISION, compute_us DOUBLE PRECISION,
		pure_comm_us DOUBLE PRECISION, min_comm_us DOUBLE PRECISION,
		max_comm_us DOUBLE PRECISION, init_us DOUBLE PRECISION,
		test_us DOUBLE PRECISION, wait_us DOUBLE PRECISION,
		overlap_pct DOUBLE PRECISION, efficiency DOUBLE PRECISION,
		validated BOOLEAN, errors INTEGER)`,
	`CREATE TABLE IF NOT EXISTS pt2pt_results (
		benchmark TEXT, title TEXT, started BIGINT, size INTEGER,
		block INTEGER, stride INTEGER, adjusted_size INTEGER,
		latency_us DOUBLE PRECISION, validated BOOLEAN, errors INTEGER)`,
	`CREATE TABLE IF NOT EXISTS sample_series (
		benchmark TEXT, title TEXT, started BIGINT, size INTEGER,
		iteration INTEGER, latency_us DOUBLE PRECISION)`,
}

type execFunc func(ctx context.Context, query string, args ...any) error

// sqlSink writes rows through exec. Postgres wants $n placeholders,
// sqlite is given ?.
type sqlSink struct {
	name    string
	exec    execFunc
	closer  func() error
	dollar  bool
	started int64
}

func newSQLSink(ctx context.Context, name string, exec execFunc, closer func() error, dollar bool) (*sqlSink, error) {
	s := &sqlSink{name: name, exec: exec, closer: closer, dollar: dollar}
	for _, stmt := range schema {
		if err := exec(ctx, stmt); err != nil {
			closer()
			return nil, reportErr(name, fmt.Errorf("creating schema: %w", err))
		}
	}
	return s, nil
}

func (s *sqlSink) insert(table string, args ...any) error {
	marks := make([]string, len(args))
	for i := range marks {
		if s.dollar {
			marks[i] = fmt.Sprintf("$%d", i+1)
		} else {
			marks[i] = "?"
		}
	}
	q := fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, strings.Join(marks, ", "))
	return reportErr(s.name, s.exec(context.Background(), q, args...))
}

func (s *sqlSink) Preamble(h common.Header) error {
	s.started = h.StartedUnixNanos
	return s.insert("runs", h.Benchmark, h.Title, h.StartedUnixNanos, h.Ranks,
		h.Datatype, h.Validate, h.CPUModel, h.CPUMHz, h.CPUCores, int64(h.MemBytes))
}

func (s *sqlSink) Collective(r common.CollectiveResult) error {
	return s.insert("collective_results", r.Benchmark, r.Title, s.started, r.Size,
		r.OverallUs, r.ComputeUs, r.PureCommUs, r.MinCommUs, r.MaxCommUs,
		r.InitUs, r.TestUs, r.WaitUs, r.OverlapPct, r.Efficiency, r.Validated, r.Errors)
}

func (s *sqlSink) PointToPoint(r common.PointResult) error {
	return s.insert("pt2pt_results", r.Benchmark, r.Title, s.started, r.Size,
		r.Block, r.Stride, r.AdjustedSize, r.LatencyUs, r.Validated, r.Errors)
}

func (s *sqlSink) Samples(series common.SampleSeries) error {
	for i, v := range series.Samples {
		if err := s.insert("sample_series", series.Benchmark, series.Title, s.started,
			series.Size, i, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlSink) Close() error {
	return reportErr(s.name, s.closer())
}

// NewSQLite stores results in the sqlite database at path, creating it
// when needed.
func NewSQLite(ctx context.Context, path string) (Sink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, reportErr("sqlite", err)
	}
	exec := func(ctx context.Context, q string, args ...any) error {
		_, err := db.ExecContext(ctx, q, args...)
		return err
	}
	s, err := newSQLSink(ctx, "sqlite", exec, db.Close, false)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgres stores results through a single connection to url.
func NewPostgres(ctx context.Context, url string) (Sink, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, reportErr("postgres", fmt.Errorf("unable to connect to database: %w", err))
	}
	exec := func(ctx context.Context, q string, args ...any) error {
		_, err := conn.Exec(ctx, q, args...)
		return err
	}
	closer := func() error {
		return conn.Close(context.Background())
	}
	s, err := newSQLSink(ctx, "postgres", exec, closer, true)
	if err != nil {
		return nil, err
	}
	return s, nil
}
