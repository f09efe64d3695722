// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securekey.
//
// go-securekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package health aggregates named health checks into a single report.
// The securekey client registers checks for capability, connection state
// and remote reachability.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status is the outcome of a check or of a whole report.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded means usable, but a reconnect or retry is in progress.
	StatusDegraded Status = "degraded"
)

// CheckResult is what a single check reports. Latency is filled in by Run.
type CheckResult struct {
	Name    string        `json:"name" yaml:"name"`
	Status  Status        `json:"status" yaml:"status"`
	Message string        `json:"message,omitempty" yaml:"message,omitempty"`
	Latency time.Duration `json:"latency" yaml:"latency"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report is the outcome of running every registered check.
type Report struct {
	Status  Status        `json:"status" yaml:"status"`
	Checks  []CheckResult `json:"checks" yaml:"checks"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// CheckFunc probes one dependency. It should return quickly and honor ctx.
type CheckFunc func(ctx context.Context) CheckResult

// Checker holds a set of named checks.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewChecker returns a checker with no checks registered.
func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]CheckFunc),
	}
}

// RegisterCheck installs check under name, replacing any previous one.
// A nil check is ignored.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	if check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// UnregisterCheck drops the named check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Names returns the names of all registered checks in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes every registered check in name order and aggregates the
// results. With no checks registered the report is healthy.
func (c *Checker) Run(ctx context.Context) Report {
	start := time.Now()

	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		began := time.Now()
		result := checks[name](ctx)
		result.Latency = time.Since(began)
		if result.Name == "" {
			result.Name = name
		}
		results = append(results, result)
	}

	return Report{
		Status:  AggregateStatus(results),
		Checks:  results,
		Elapsed: time.Since(start),
	}
}

// IsHealthy runs every check and reports whether the aggregate is healthy.
func (c *Checker) IsHealthy(ctx context.Context) bool {
	return c.Run(ctx).Status == StatusHealthy
}

// AggregateStatus folds results into one status. Unhealthy wins over
// degraded; an empty set is healthy.
func AggregateStatus(results []CheckResult) Status {
	hasUnhealthy := false
	hasDegraded := false

	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			hasUnhealthy = true
		case StatusDegraded:
			hasDegraded = true
		}
	}

	if hasUnhealthy {
		return StatusUnhealthy
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Healthy is a convenience constructor for a passing result.
func Healthy(name, message string) CheckResult {
	return CheckResult{Name: name, Status: StatusHealthy, Message: message}
}

// Unhealthy is a convenience constructor for a failing result.
func Unhealthy(name string, err error) CheckResult {
	r := CheckResult{Name: name, Status: StatusUnhealthy}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
