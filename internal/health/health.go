// Package health runs named probes against the daemon's dependencies and
// serves the aggregate over HTTP.
package health

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"grimm.is/holdover/internal/clock"
)

// Status is the state of one probe or of the whole report.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) rank() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	}
	return 0
}

// DefaultCacheTTL bounds how often probes actually run.
const DefaultCacheTTL = 5 * time.Second

// ProbeFunc returns nil while the dependency it watches is usable.
type ProbeFunc func(ctx context.Context) error

// Result is the outcome of one probe run.
type Result struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	TookMS    int64     `json:"took_ms"`
}

// Report aggregates every probe. Status is the worst probe status.
type Report struct {
	Status    Status    `json:"status"`
	Probes    []Result  `json:"probes"`
	CheckedAt time.Time `json:"checked_at"`
}

// Probe returns the named result, if present.
func (r Report) Probe(name string) (Result, bool) {
	i := slices.IndexFunc(r.Probes, func(p Result) bool { return p.Name == name })
	if i < 0 {
		return Result{}, false
	}
	return r.Probes[i], true
}

type probe struct {
	name     string
	severity Status
	fn       ProbeFunc
}

// Checker holds the registered probes and the last report.
type Checker struct {
	mu     sync.Mutex
	probes []probe
	last   *Report
	ttl    time.Duration
	clk    clock.Clock
}

// NewChecker creates a checker with no probes. A ttl of zero disables caching.
func NewChecker(ttl time.Duration, clk clock.Clock) *Checker {
	return &Checker{ttl: ttl, clk: clock.OrReal(clk)}
}

// Add registers fn under name. A failing probe reports severity. Adding a
// name twice replaces the earlier probe.
func (c *Checker) Add(name string, severity Status, fn ProbeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = slices.DeleteFunc(c.probes, func(p probe) bool { return p.name == name })
	c.probes = append(c.probes, probe{name: name, severity: severity, fn: fn})
	slices.SortFunc(c.probes, func(a, b probe) int { return cmp.Compare(a.name, b.name) })
	c.last = nil
}

// Run executes every probe concurrently. A report younger than the cache TTL
// is returned as is so a busy /healthz cannot hammer the policy resource.
func (c *Checker) Run(ctx context.Context) Report {
	now := c.clk.Now()

	c.mu.Lock()
	if c.last != nil && now.Sub(c.last.CheckedAt) < c.ttl {
		report := *c.last
		c.mu.Unlock()
		return report
	}
	probes := slices.Clone(c.probes)
	c.mu.Unlock()

	report := Report{Status: StatusHealthy, Probes: make([]Result, len(probes)), CheckedAt: now}
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report.Probes[i] = c.runProbe(ctx, p)
		}()
	}
	wg.Wait()

	for _, r := range report.Probes {
		if r.Status.rank() > report.Status.rank() {
			report.Status = r.Status
		}
	}

	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()
	return report
}

func (c *Checker) runProbe(ctx context.Context, p probe) Result {
	res := Result{Name: p.name, Status: StatusHealthy, CheckedAt: c.clk.Now()}
	if err := p.fn(ctx); err != nil {
		res.Status = p.severity
		res.Error = err.Error()
	}
	res.TookMS = c.clk.Since(res.CheckedAt).Milliseconds()
	return res
}

// ServeHTTP writes the report as JSON with 503 when unhealthy.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	report := c.Run(ctx)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code(report.Status))
	json.NewEncoder(w).Encode(report)
}

// Ready answers READY or NOT READY in plain text.
func (c *Checker) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := code(c.Run(ctx).Status)
	w.WriteHeader(status)
	if status == http.StatusOK {
		io.WriteString(w, "READY")
		return
	}
	io.WriteString(w, "NOT READY")
}

// Live answers 200 while the process can serve HTTP at all.
func Live(w http.ResponseWriter, _ *http.Request) {
	io.WriteString(w, "OK")
}

func code(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// DirWritable fails when dir cannot take a new file.
func DirWritable(dir string) ProbeFunc {
	return func(context.Context) error {
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return fmt.Errorf("write %s: %w", filepath.Clean(dir), err)
		}
		name := f.Name()
		f.Close()
		return os.Remove(name)
	}
}
