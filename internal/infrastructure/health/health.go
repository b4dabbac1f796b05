// Package health aggregates dependency probes for the worker. The result
// is logged by a scheduled job; the engine exposes no network endpoint.
package health

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// CheckFunc probes one dependency and returns an error if it is unhealthy.
type CheckFunc func(ctx context.Context) error

// Pinger is satisfied by the PostgreSQL connection and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck turns a Pinger into a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// Status is the aggregated result of one run.
type Status struct {
	Healthy   bool                   `json:"healthy"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    time.Duration          `json:"uptime"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// Failed lists the names of failed checks in order.
func (s Status) Failed() []string {
	var out []string
	for name, r := range s.Checks {
		if !r.Healthy {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// CheckResult is the outcome of a single probe.
type CheckResult struct {
	Healthy  bool          `json:"healthy"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Checker runs named probes concurrently, each under its own timeout.
type Checker struct {
	mu        sync.RWMutex
	checks    map[string]CheckFunc
	startTime time.Time
	version   string
	timeout   time.Duration
	now       func() time.Time
}

// NewChecker creates a Checker.
func NewChecker(version string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:    make(map[string]CheckFunc),
		startTime: time.Now(),
		version:   version,
		timeout:   timeout,
		now:       time.Now,
	}
}

// AddCheck registers or replaces a named probe.
func (c *Checker) AddCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// RemoveCheck removes a named probe.
func (c *Checker) RemoveCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Check runs every probe and aggregates the results.
func (c *Checker) Check(ctx context.Context) Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	status := Status{
		Healthy:   true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    c.now().Sub(c.startTime).Round(time.Second),
		Timestamp: c.now().UTC(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		status.Message = "no checks registered"
		return status
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.run(ctx, check)
			mu.Lock()
			status.Checks[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	if failed := status.Failed(); len(failed) > 0 {
		status.Healthy = false
		status.Message = "failed: " + strings.Join(failed, ", ")
	} else {
		status.Message = "all checks passed"
	}
	return status
}

func (c *Checker) run(ctx context.Context, check CheckFunc) (result CheckResult) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = CheckResult{Message: "check panicked"}
		}
		result.Duration = time.Since(start)
	}()

	if err := check(ctx); err != nil {
		return CheckResult{Message: err.Error()}
	}
	return CheckResult{Healthy: true, Message: "OK"}
}
