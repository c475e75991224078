package prober

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"encwatch/core-go/internal/downtime"
	"encwatch/core-go/internal/ingest"
)

type fakeSink struct {
	importFn func(ctx context.Context, records []downtime.Record, source string) (ingest.Result, error)
}

func (f *fakeSink) ImportRecords(ctx context.Context, records []downtime.Record, source string) (ingest.Result, error) {
	if f.importFn == nil {
		return ingest.Result{Inserted: len(records)}, nil
	}
	return f.importFn(ctx, records, source)
}

func writeTargetsFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write targets file: %v", err)
	}
	return path
}

func TestLoadTargets_ParsesYAML(t *testing.T) {
	path := writeTargetsFile(t, `
targets:
  - name: cam-1
    address: 10.0.0.11
    community: encoders
  - address: " 10.0.0.12 "
`)

	targets, err := LoadTargets(path)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].Name != "cam-1" || targets[0].Address != "10.0.0.11" || targets[0].Community != "encoders" {
		t.Fatalf("unexpected first target: %+v", targets[0])
	}
	if targets[1].Name != "" || targets[1].Address != "10.0.0.12" {
		t.Fatalf("unexpected second target: %+v", targets[1])
	}
}

func TestLoadTargets_RequiresAddress(t *testing.T) {
	path := writeTargetsFile(t, `
targets:
  - name: cam-1
`)
	if _, err := LoadTargets(path); err == nil {
		t.Fatalf("expected error for target without address")
	}
}

func TestLoadTargets_MissingFile(t *testing.T) {
	if _, err := LoadTargets(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func newTestProber(t *testing.T, targets []Target, sink Sink) *Prober {
	t.Helper()
	p, err := New(zerolog.Nop(), sink, targets, Options{}, nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	p.now = func() time.Time {
		return time.Date(2023, time.November, 1, 10, 0, 0, 0, time.UTC)
	}
	return p
}

func TestProber_Sweep_FirstSweepRecordsBaseline(t *testing.T) {
	var got []downtime.Record
	var source string
	sink := &fakeSink{
		importFn: func(ctx context.Context, records []downtime.Record, src string) (ingest.Result, error) {
			got = append(got, records...)
			source = src
			return ingest.Result{Inserted: len(records)}, nil
		},
	}

	p := newTestProber(t, []Target{
		{Name: "cam-1", Address: "10.0.0.11"},
		{Name: "cam-2", Address: "10.0.0.12"},
	}, sink)
	p.poll = func(ctx context.Context, tg Target) (bool, error) {
		return tg.Name == "cam-1", nil
	}

	p.sweep(context.Background())

	if len(got) != 2 {
		t.Fatalf("expected 2 baseline records, got %d", len(got))
	}
	if got[0].Device != "cam-1" || got[0].Label != "encoding online" {
		t.Fatalf("unexpected first record: %+v", got[0])
	}
	if got[1].Device != "cam-2" || got[1].Label != "encoding offline" {
		t.Fatalf("unexpected second record: %+v", got[1])
	}
	if got[0].Time != "01-11-2023 10:00:00" {
		t.Fatalf("unexpected record time: %q", got[0].Time)
	}
	if source != "probe" {
		t.Fatalf("expected source probe, got %q", source)
	}
}

func TestProber_Sweep_OnlyTransitionsRecorded(t *testing.T) {
	var got []downtime.Record
	sink := &fakeSink{
		importFn: func(ctx context.Context, records []downtime.Record, src string) (ingest.Result, error) {
			got = append(got, records...)
			return ingest.Result{Inserted: len(records)}, nil
		},
	}

	up := true
	p := newTestProber(t, []Target{{Name: "cam-1", Address: "10.0.0.11"}}, sink)
	p.poll = func(ctx context.Context, tg Target) (bool, error) {
		return up, nil
	}

	p.sweep(context.Background())
	p.sweep(context.Background())
	if len(got) != 1 {
		t.Fatalf("expected steady state to record nothing, got %d records", len(got))
	}

	up = false
	p.sweep(context.Background())
	if len(got) != 2 {
		t.Fatalf("expected a transition record, got %d records", len(got))
	}
	if got[1].Label != "encoding offline" {
		t.Fatalf("expected offline transition, got %+v", got[1])
	}
}

func TestProber_Sweep_PollErrorCountsAsOffline(t *testing.T) {
	var got []downtime.Record
	sink := &fakeSink{
		importFn: func(ctx context.Context, records []downtime.Record, src string) (ingest.Result, error) {
			got = append(got, records...)
			return ingest.Result{Inserted: len(records)}, nil
		},
	}

	p := newTestProber(t, []Target{{Name: "cam-1", Address: "10.0.0.11"}}, sink)
	p.poll = func(ctx context.Context, tg Target) (bool, error) {
		return false, errors.New("timeout")
	}

	p.sweep(context.Background())
	if len(got) != 1 || got[0].Label != "encoding offline" {
		t.Fatalf("expected offline record on poll error, got %+v", got)
	}
}

func TestProber_Sweep_StoreFailureRetriesNextSweep(t *testing.T) {
	calls := 0
	sink := &fakeSink{
		importFn: func(ctx context.Context, records []downtime.Record, src string) (ingest.Result, error) {
			calls++
			if calls == 1 {
				return ingest.Result{}, errors.New("db offline")
			}
			return ingest.Result{Inserted: len(records)}, nil
		},
	}

	p := newTestProber(t, []Target{{Name: "cam-1", Address: "10.0.0.11"}}, sink)
	p.poll = func(ctx context.Context, tg Target) (bool, error) {
		return true, nil
	}

	p.sweep(context.Background())
	p.sweep(context.Background())
	if calls != 2 {
		t.Fatalf("expected failed store to retry on the next sweep, got %d calls", calls)
	}

	// Once stored, steady state goes quiet again.
	p.sweep(context.Background())
	if calls != 2 {
		t.Fatalf("expected no further records after success, got %d calls", calls)
	}
}

func TestProber_ResolveNames(t *testing.T) {
	p := newTestProber(t, []Target{
		{Address: "10.0.0.11"},
		{Address: "10.0.0.12"},
		{Name: "named", Address: "10.0.0.13"},
	}, &fakeSink{})
	p.opts.Resolver = "10.0.0.1"
	p.resolve = func(ctx context.Context, server, addr string) (string, error) {
		if addr == "10.0.0.11" {
			return "cam-1.example.net", nil
		}
		return "", errors.New("nxdomain")
	}

	p.resolveNames(context.Background())

	if p.targets[0].Name != "cam-1.example.net" {
		t.Fatalf("expected resolved name, got %q", p.targets[0].Name)
	}
	if p.targets[1].Name != "10.0.0.12" {
		t.Fatalf("expected address fallback, got %q", p.targets[1].Name)
	}
	if p.targets[2].Name != "named" {
		t.Fatalf("expected explicit name untouched, got %q", p.targets[2].Name)
	}
}

func TestProber_ResolveNames_NoResolverFallsBackToAddress(t *testing.T) {
	p := newTestProber(t, []Target{{Address: "10.0.0.11"}}, &fakeSink{})
	p.resolve = func(ctx context.Context, server, addr string) (string, error) {
		t.Fatalf("resolver should not be consulted")
		return "", nil
	}

	p.resolveNames(context.Background())
	if p.targets[0].Name != "10.0.0.11" {
		t.Fatalf("expected address fallback, got %q", p.targets[0].Name)
	}
}

func TestNew_RequiresTargets(t *testing.T) {
	if _, err := New(zerolog.Nop(), &fakeSink{}, nil, Options{}, nil); err == nil {
		t.Fatalf("expected error for empty target list")
	}
}
