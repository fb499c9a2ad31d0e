// Package suite runs independent scenarios, each in its own browser context,
// with bounded parallelism.
package suite

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kuitang/spverify/internal/browser"
	"github.com/kuitang/spverify/internal/errs"
	"github.com/kuitang/spverify/internal/obs"
	"github.com/kuitang/spverify/internal/runner"
	"github.com/kuitang/spverify/internal/scenario"
)

// ContextFactory hands out a fresh browser context per call and closes it
// when fn returns. *browser.Launcher implements it.
type ContextFactory interface {
	WithContext(fn func(browser.Context) error) error
}

var _ ContextFactory = (*browser.Launcher)(nil)

// Suite runs scenarios against contexts from Contexts.
type Suite struct {
	Runner   *runner.Runner
	Contexts ContextFactory
	// Parallel bounds how many scenarios run at once. Values below 1 mean 1.
	Parallel int
}

// Report is the outcome of one suite run. Results keep input order.
type Report struct {
	RunID    string          `json:"run_id"`
	Started  time.Time       `json:"started"`
	Duration time.Duration   `json:"duration"`
	Results  []runner.Result `json:"results"`
}

// Passed reports whether every scenario passed. An empty report passes.
func (r Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return true
}

// Failed returns the failing results in input order.
func (r Report) Failed() []runner.Result {
	var out []runner.Result
	for _, res := range r.Results {
		if !res.Passed() {
			out = append(out, res)
		}
	}
	return out
}

// Counts returns the number of passing and failing scenarios.
func (r Report) Counts() (passed, failed int) {
	for _, res := range r.Results {
		if res.Passed() {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// Run executes every scenario. A failing scenario never cancels its
// siblings; cancelling ctx aborts whatever is still running.
func (s *Suite) Run(ctx context.Context, scenarios []scenario.Scenario) Report {
	ctx = obs.WithRunID(ctx, s.Runner.RunID)
	log := obs.From(ctx)
	report := Report{
		RunID:   s.Runner.RunID,
		Started: time.Now().UTC(),
		Results: make([]runner.Result, len(scenarios)),
	}

	limit := s.Parallel
	if limit < 1 {
		limit = 1
	}
	log.Info("suite_started", "scenarios", len(scenarios), "parallel", limit)

	var g errgroup.Group
	g.SetLimit(limit)
	for i, sc := range scenarios {
		g.Go(func() error {
			report.Results[i] = s.runOne(ctx, sc)
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(report.Started)
	passed, failed := report.Counts()
	log.Info("suite_finished", "passed", passed, "failed", failed, "duration_ms", report.Duration.Milliseconds())
	return report
}

func (s *Suite) runOne(ctx context.Context, sc scenario.Scenario) runner.Result {
	var res runner.Result
	ran := false
	err := s.Contexts.WithContext(func(bctx browser.Context) error {
		ran = true
		res = s.Runner.Run(ctx, bctx, sc)
		return nil
	})
	if err == nil {
		return res
	}
	if ran {
		// The scenario finished; only releasing its context failed.
		obs.From(obs.WithScenario(ctx, sc.Name)).Warn("context_close_failed", "error", err)
		return res
	}
	return runner.Result{
		Scenario:   sc.Name,
		RunID:      s.Runner.RunID,
		Status:     runner.Failed,
		TotalSteps: len(sc.Steps),
		Err:        errs.Wrap(errs.Unavailable, "acquire browser context", err),
		Started:    time.Now().UTC(),
	}
}
