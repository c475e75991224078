// Package prober polls encoders over SNMP and records status transitions as
// observations, so devices that stop publishing still show up in reports.
package prober

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/rs/zerolog"

	"encwatch/core-go/internal/downtime"
	"encwatch/core-go/internal/ingest"
	"encwatch/core-go/internal/metrics"
)

const oidSysUpTime0 = "1.3.6.1.2.1.1.3.0"

// Sink stores probe-derived records. *ingest.Importer satisfies it.
type Sink interface {
	ImportRecords(ctx context.Context, records []downtime.Record, source string) (ingest.Result, error)
}

// Options configures the poll loop. Zero values get defaults.
type Options struct {
	Interval  time.Duration
	Community string
	Port      uint16
	Timeout   time.Duration
	Retries   int
	Workers   int
	// Resolver is the DNS server used to fill in missing target names via
	// PTR lookups. Empty means unnamed targets keep their address.
	Resolver string
}

// Prober sweeps the target list on an interval and writes an observation
// whenever a device's reachability changes. The first sweep always records,
// so every target has a baseline row.
type Prober struct {
	log     zerolog.Logger
	sink    Sink
	targets []Target
	opts    Options
	metrics *metrics.Metrics

	poll    func(ctx context.Context, t Target) (bool, error)
	resolve func(ctx context.Context, server, addr string) (string, error)
	now     func() time.Time

	last map[string]downtime.Status
}

func New(log zerolog.Logger, sink Sink, targets []Target, opts Options, m *metrics.Metrics) (*Prober, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("no probe targets")
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Community == "" {
		opts.Community = "public"
	}
	if opts.Port == 0 {
		opts.Port = 161
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 900 * time.Millisecond
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}

	p := &Prober{
		log:     log.With().Str("component", "prober").Logger(),
		sink:    sink,
		targets: targets,
		opts:    opts,
		metrics: m,
		resolve: resolvePTR,
		now:     time.Now,
		last:    make(map[string]downtime.Status, len(targets)),
	}
	p.poll = p.snmpPoll
	return p, nil
}

// Run resolves target names, then sweeps until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	p.resolveNames(ctx)

	p.log.Info().
		Int("targets", len(p.targets)).
		Dur("interval", p.opts.Interval).
		Msg("prober started")

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// resolveNames fills empty target names from PTR records, falling back to
// the address so every target has a stable device name.
func (p *Prober) resolveNames(ctx context.Context) {
	for i := range p.targets {
		if p.targets[i].Name != "" {
			continue
		}
		addr := p.targets[i].Address
		if p.opts.Resolver != "" {
			lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			name, err := p.resolve(lookupCtx, p.opts.Resolver, addr)
			cancel()
			if err == nil && name != "" {
				p.targets[i].Name = name
				p.log.Debug().Str("address", addr).Str("name", name).Msg("target name resolved")
				continue
			}
			p.log.Debug().Err(err).Str("address", addr).Msg("ptr lookup failed, using address")
		}
		p.targets[i].Name = addr
	}
}

type sweepResult struct {
	up  bool
	err error
}

func (p *Prober) sweep(ctx context.Context) {
	results := make([]sweepResult, len(p.targets))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				up, err := p.poll(ctx, p.targets[idx])
				results[idx] = sweepResult{up: up, err: err}
			}
		}()
	}

	for idx := range p.targets {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	at := p.now().UTC()
	for idx, res := range results {
		t := p.targets[idx]
		status := downtime.StatusOffline
		label := "encoding offline"
		if res.up {
			status = downtime.StatusOnline
			label = "encoding online"
		}
		if res.err != nil {
			// An agent that cannot answer is offline for our purposes.
			p.log.Debug().Err(res.err).Str("device", t.Name).Msg("probe failed")
		}

		if prev, seen := p.last[t.Name]; seen && prev == status {
			continue
		}

		rec := downtime.Record{
			Device: t.Name,
			Time:   at.Format("02-01-2006 15:04:05"),
			Label:  label,
		}
		if _, err := p.sink.ImportRecords(ctx, []downtime.Record{rec}, "probe"); err != nil {
			// Leave last untouched so the transition retries next sweep.
			p.log.Error().Err(err).Str("device", t.Name).Msg("probe observation not stored")
			continue
		}

		p.last[t.Name] = status
		p.metrics.IncProbeTransition(string(status))
		p.log.Info().
			Str("device", t.Name).
			Str("status", string(status)).
			Msg("probe transition recorded")
	}
}

func (p *Prober) snmpPoll(ctx context.Context, t Target) (bool, error) {
	community := t.Community
	if community == "" {
		community = p.opts.Community
	}

	s := &gosnmp.GoSNMP{
		Target:    t.Address,
		Port:      p.opts.Port,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   p.opts.Timeout,
		Retries:   p.opts.Retries,
		Context:   ctx,
	}
	if err := s.Connect(); err != nil {
		return false, err
	}
	defer s.Conn.Close()

	if _, err := s.Get([]string{oidSysUpTime0}); err != nil {
		return false, err
	}
	return true, nil
}
