// Package health implements the periodic Health Scheduler (spec.md §4.2):
// every tick it probes every never-before-seen backend plus one randomly
// chosen already-seen backend, and waits for all of those probes to
// finish before the next tick can start.
//
// The tick/fan-in shape is the teacher's: ProxyManager.runHealthChecks
// drives a time.Ticker and ProxyManager.checkAll fans out one goroutine
// per upstream behind a sync.WaitGroup. Scheduler generalizes that to the
// unseen/seen partition and single-random-seen-probe rule spec.md adds on
// top, and classifies results into the three-state BackendState the
// teacher's boolean IsHealthy doesn't have.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ketralnis/exproxyment/internal/routing"
)

const (
	// DefaultInterval is the 1000ms tick period from spec.md §4.2.
	DefaultInterval = 1000 * time.Millisecond

	// DefaultHealthPath and the connect/request timeouts below are fixed
	// by spec.md §4.2 and are not configurable per-backend.
	DefaultHealthPath  = "/health"
	connectTimeout     = 500 * time.Millisecond
	requestTimeout     = 500 * time.Millisecond
)

type probeResponse struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version"`
}

// Scheduler runs the periodic probe loop against a routing.Table.
type Scheduler struct {
	table    *routing.Table
	interval time.Duration
	log      *zap.SugaredLogger
	client   *http.Client

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New builds a Scheduler. If interval is zero, DefaultInterval is used.
func New(table *routing.Table, interval time.Duration, log *zap.SugaredLogger) *Scheduler {
	if interval == 0 {
		interval = DefaultInterval
	}

	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext: dialer.DialContext,
	}

	return &Scheduler{
		table:    table,
		interval: interval,
		log:      log,
		client: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Run blocks, ticking every s.interval, until Stop is called. The next
// tick never begins until the previous tick's fan-in of probes has fully
// completed (PeriodicCallback semantics per spec.md §4.2/§5), which both
// bounds probe concurrency against a slow fleet and keeps this call
// trivial to stop deterministically between ticks.
func (s *Scheduler) Run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

// Stop signals Run to exit and blocks until it has.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// tick partitions the known backends into unseen/seen, launches a probe
// for every unseen one plus (if any exist) one randomly chosen seen one,
// and waits for all of them.
func (s *Scheduler) tick() {
	unseen, seen := s.table.Partition()

	var wg sync.WaitGroup
	probe := func(b routing.Backend) {
		defer wg.Done()
		s.probeOne(b)
	}

	for _, b := range unseen {
		wg.Add(1)
		go probe(b)
	}
	if len(seen) > 0 {
		wg.Add(1)
		go probe(seen[rand.Intn(len(seen))])
	}
	wg.Wait()
}

// probeOne issues a single health check against b and, if b is still
// present in the table, writes the classified result.
func (s *Scheduler) probeOne(b routing.Backend) {
	prior, known := s.table.BackendState(b)

	next, err := s.fetch(b)
	if err != nil {
		next = routing.State{Health: routing.Unhealthy}
	}

	s.logTransition(b, prior, next, known)

	s.table.UpdateIfPresent(b, next)
}

// fetch performs the actual GET http://host:port/health and classifies
// the response per the table in spec.md §4.2.
func (s *Scheduler) fetch(b routing.Backend) (routing.State, error) {
	url := fmt.Sprintf("http://%s:%d%s", b.Host, b.Port, DefaultHealthPath)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return routing.State{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return routing.State{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return routing.State{Health: routing.Unhealthy}, nil
	}

	var body probeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return routing.State{Health: routing.Unhealthy}, nil
	}
	if !body.Healthy || body.Version == "" {
		return routing.State{Health: routing.Unhealthy}, nil
	}
	return routing.State{Health: routing.Healthy, Version: body.Version}, nil
}

// logTransition applies spec.md §4.2's logging levels: a transition into
// Unhealthy from Healthy or Unknown logs at Warn, continued Unhealthy
// logs at Debug. Recovery to Healthy logs at Info — a level spec.md
// doesn't specify but the original Python does (see SPEC_FULL.md,
// "Health-check log levels").
func (s *Scheduler) logTransition(b routing.Backend, prior routing.State, next routing.State, known bool) {
	if !known || prior.Health == routing.Unknown {
		// first-ever observation of this backend (or one already removed
		// from the table, whose result UpdateIfPresent then discards)
		if next.Health == routing.Healthy {
			s.log.Infow("backend now healthy", "backend", b.String(), "version", next.Version)
		} else {
			s.log.Warnw("backend unhealthy on first probe", "backend", b.String())
		}
		return
	}

	switch {
	case prior.Health != routing.Unhealthy && next.Health == routing.Unhealthy:
		s.log.Warnw("backend marked unhealthy", "backend", b.String(), "was", prior.Health.String())
	case prior.Health == routing.Unhealthy && next.Health == routing.Unhealthy:
		s.log.Debugw("backend still unhealthy", "backend", b.String())
	case prior.Health != routing.Healthy && next.Health == routing.Healthy:
		s.log.Infow("backend recovered", "backend", b.String(), "version", next.Version)
	default:
		s.log.Debugw("backend state unchanged", "backend", b.String(), "health", next.Health.String())
	}
}
