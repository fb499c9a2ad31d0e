// Package runner executes one scenario against one browser context.
//
// Steps run strictly in order. Every step blocks until it succeeds, fails or
// its timeout elapses; the first failure ends the scenario. Element lookups
// and assertions are bounded polling loops driven from Go so a missing
// element fails deterministically instead of hanging.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kuitang/spverify/internal/browser"
	"github.com/kuitang/spverify/internal/errs"
	"github.com/kuitang/spverify/internal/evidence"
	"github.com/kuitang/spverify/internal/logutil"
	"github.com/kuitang/spverify/internal/obs"
	"github.com/kuitang/spverify/internal/routemock"
	"github.com/kuitang/spverify/internal/scenario"
	"github.com/kuitang/spverify/internal/urlutil"
)

const (
	DefaultStepTimeout  = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond

	// maxDiagnosticContent bounds the page excerpt attached to failures.
	maxDiagnosticContent = 2000
)

// Status is the outcome of a step or scenario.
type Status string

const (
	Passed Status = "passed"
	Failed Status = "failed"
)

// StepResult is the outcome of one attempted step.
type StepResult struct {
	Index       int           `json:"index"`
	Kind        scenario.Kind `json:"kind"`
	Description string        `json:"description"`
	Status      Status        `json:"status"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

// Result is the outcome of one scenario. Steps holds every attempted step;
// steps after the first failure are never attempted.
type Result struct {
	Scenario      string              `json:"scenario"`
	RunID         string              `json:"run_id"`
	Status        Status              `json:"status"`
	Steps         []StepResult        `json:"steps"`
	TotalSteps    int                 `json:"total_steps"`
	Err           error               `json:"-"`
	Evidence      []evidence.Artifact `json:"evidence,omitempty"`
	MockHits      []routemock.Hit     `json:"mock_hits,omitempty"`
	PassedThrough int                 `json:"passed_through"`
	Started       time.Time           `json:"started"`
	Duration      time.Duration       `json:"duration"`
}

// Passed reports whether every step completed.
func (r Result) Passed() bool { return r.Status == Passed }

// FailedStep returns the step that ended the scenario, if any.
func (r Result) FailedStep() (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Status == Failed {
			return s, true
		}
	}
	return StepResult{}, false
}

// Runner holds the settings shared by every scenario in a run.
type Runner struct {
	// StepTimeout applies to steps without their own timeout.
	StepTimeout  time.Duration
	PollInterval time.Duration
	// BaseURL resolves relative navigate URLs when the scenario sets none.
	BaseURL  string
	Evidence *evidence.Store
	// RunID defaults to the run ID carried by the context.
	RunID string
}

func (r *Runner) stepTimeout(s scenario.Step) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	if r.StepTimeout > 0 {
		return r.StepTimeout
	}
	return DefaultStepTimeout
}

func (r *Runner) pollInterval() time.Duration {
	if r.PollInterval > 0 {
		return r.PollInterval
	}
	return DefaultPollInterval
}

// Run executes sc against bctx. The caller owns bctx and closes it.
func (r *Runner) Run(ctx context.Context, bctx browser.Context, sc scenario.Scenario) (res Result) {
	runID := r.RunID
	if runID == "" {
		runID = obs.RunIDFromContext(ctx)
	}
	ctx = obs.WithScenario(obs.WithRunID(ctx, runID), sc.Name)
	log := obs.From(ctx)

	res = Result{
		Scenario:   sc.Name,
		RunID:      runID,
		TotalSteps: len(sc.Steps),
		Started:    time.Now().UTC(),
	}
	x := &execution{r: r, sc: sc}
	defer func() {
		res.Duration = time.Since(res.Started)
		res.Evidence = x.artifacts
		if x.mocks != nil {
			res.MockHits = x.mocks.Hits()
			res.PassedThrough = x.mocks.PassedThrough()
		}
		if res.Err == nil {
			res.Status = Passed
			log.Info("scenario_passed", "steps", len(res.Steps), "duration_ms", res.Duration.Milliseconds())
		} else {
			res.Status = Failed
			log.Error("scenario_failed", "code", errs.CodeOf(res.Err), "error", res.Err, "duration_ms", res.Duration.Milliseconds())
		}
	}()

	log.Info("scenario_started", "steps", len(sc.Steps), "mocks", len(sc.Mocks))
	if err := sc.Validate(); err != nil {
		res.Err = errs.Wrap(errs.InvalidArgument, "invalid scenario", err)
		return res
	}
	if err := x.checkBase(); err != nil {
		res.Err = err
		return res
	}
	if err := x.prepare(ctx, bctx); err != nil {
		res.Err = err
		return res
	}
	defer func() {
		if err := x.page.Close(); err != nil {
			log.Warn("page_close_failed", "error", err)
		}
	}()

	for i, step := range sc.Steps {
		stepCtx := obs.WithStep(ctx, i+1, string(step.Kind))
		sr := x.runStep(stepCtx, i+1, step)
		res.Steps = append(res.Steps, sr)
		if sr.Err != nil {
			res.Err = sr.Err
			x.captureFailure(ctx)
			return res
		}
	}
	return res
}

// execution is the per-scenario state: one page, one mock table.
type execution struct {
	r         *Runner
	sc        scenario.Scenario
	page      browser.Page
	mocks     *routemock.Registry
	artifacts []evidence.Artifact
}

// prepare installs mocks, then init scripts, then opens the page. Both must be
// in place before the first navigation.
func (x *execution) prepare(ctx context.Context, bctx browser.Context) error {
	x.mocks = routemock.New()
	for _, m := range x.sc.Mocks {
		if err := x.mocks.Register(m); err != nil {
			return err
		}
	}
	if err := x.mocks.Install(bctx); err != nil {
		return err
	}

	if len(x.sc.LocalStorage) > 0 {
		script, err := browser.LocalStorageScript(x.sc.LocalStorage)
		if err != nil {
			return errs.Wrap(errs.InvalidArgument, "build localStorage seed", err)
		}
		if err := bctx.AddInitScript(script); err != nil {
			return errs.Wrap(errs.Internal, "install localStorage seed", err)
		}
	}
	for i, script := range x.sc.InitScripts {
		if err := bctx.AddInitScript(script); err != nil {
			return errs.Wrap(errs.Internal, fmt.Sprintf("install init script %d", i+1), err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		return errs.Wrap(errs.Internal, "open page", err)
	}
	x.page = page

	keys := make([]string, 0, len(x.sc.LocalStorage))
	for k := range x.sc.LocalStorage {
		keys = append(keys, k)
	}
	obs.From(ctx).Debug("context_prepared", "mocks", len(x.sc.Mocks), "local_storage_keys", keys, "init_scripts", len(x.sc.InitScripts))
	return nil
}

func (x *execution) runStep(ctx context.Context, index int, step scenario.Step) StepResult {
	log := obs.From(ctx)
	sr := StepResult{Index: index, Kind: step.Kind, Description: step.Describe()}
	timeout := x.r.stepTimeout(step)

	attrs := []any{"description", sr.Description, "timeout_ms", timeout.Milliseconds()}
	if step.Kind == scenario.Fill {
		attrs = append(attrs, "value", logutil.RedactValue(step.Value, step.Target.Hints()...))
	}
	log.Debug("step_started", attrs...)

	start := time.Now()
	deadline := start.Add(timeout)
	var err error
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = cancelled(ctxErr)
	} else {
		switch kind := step.Kind; {
		case kind.IsAssertion():
			err = x.assert(ctx, step, deadline)
		case kind == scenario.Navigate:
			err = x.navigate(ctx, step, timeout)
		case kind == scenario.Fill:
			err = x.fill(ctx, step, deadline)
		case kind == scenario.Click:
			err = x.click(ctx, step, deadline)
		case kind == scenario.Screenshot:
			err = x.screenshot(ctx, step)
		default:
			err = errs.Newf(errs.InvalidArgument, "unknown step kind %q", step.Kind)
		}
	}
	sr.Duration = time.Since(start)
	sr.Err = err
	if err != nil {
		sr.Status = Failed
		log.Warn("step_failed", "description", sr.Description, "code", errs.CodeOf(err), "error", err, "duration_ms", sr.Duration.Milliseconds())
		return sr
	}
	sr.Status = Passed
	log.Info("step_passed", "description", sr.Description, "duration_ms", sr.Duration.Milliseconds())
	return sr
}

// checkBase rejects relative navigations when neither the scenario nor the
// runner supplies a base URL.
func (x *execution) checkBase() error {
	if x.sc.BaseURL != "" || x.r.BaseURL != "" {
		return nil
	}
	for i, step := range x.sc.Steps {
		if step.Kind == scenario.Navigate && !urlutil.IsAbsolute(step.URL) {
			return errs.Newf(errs.InvalidArgument, "step %d: relative url %q needs a base URL", i+1, step.URL)
		}
	}
	return nil
}

func (x *execution) resolveURL(u string) string {
	base := x.sc.BaseURL
	if base == "" {
		base = x.r.BaseURL
	}
	return urlutil.BuildAbsolute(base, u)
}

func (x *execution) navigate(ctx context.Context, step scenario.Step, timeout time.Duration) error {
	target := x.resolveURL(step.URL)
	if !urlutil.ValidateBaseURL(target) {
		return errs.Newf(errs.Navigation, "cannot navigate to %q: not an absolute http(s) URL", target)
	}
	if err := x.page.Goto(target, timeout); err != nil {
		return errs.WithDiagnostics(
			errs.Wrap(errs.Navigation, fmt.Sprintf("navigate to %s", target), err),
			x.diagnostics(nil, nil),
		)
	}
	return nil
}

func (x *execution) fill(ctx context.Context, step scenario.Step, deadline time.Time) error {
	ready := func(s browser.ElementState) bool { return s.Visible && s.Enabled && s.Editable }
	if err := x.resolveOne(ctx, step.Target, deadline, ready, "editable"); err != nil {
		return err
	}
	if err := x.page.Fill(step.Target, step.Value, remaining(deadline)); err != nil {
		return errs.WithDiagnostics(
			errs.Wrap(errs.NotInteractable, fmt.Sprintf("fill %s", step.Target), err),
			x.diagnostics(&step.Target, nil),
		)
	}
	return nil
}

func (x *execution) click(ctx context.Context, step scenario.Step, deadline time.Time) error {
	ready := func(s browser.ElementState) bool { return s.Visible && s.Enabled }
	if err := x.resolveOne(ctx, step.Target, deadline, ready, "visible and enabled"); err != nil {
		return err
	}
	if err := x.page.Click(step.Target, remaining(deadline)); err != nil {
		return errs.WithDiagnostics(
			errs.Wrap(errs.NotInteractable, fmt.Sprintf("click %s", step.Target), err),
			x.diagnostics(&step.Target, nil),
		)
	}
	return nil
}

// resolveOne polls until exactly one element matches loc and satisfies ready.
// At the deadline a wrong match count is ElementNotFound; a single element
// that never became ready is NotInteractable.
func (x *execution) resolveOne(ctx context.Context, loc browser.Locator, deadline time.Time, ready func(browser.ElementState) bool, want string) error {
	var states []browser.ElementState
	var queryErr error
	err := x.r.poll(ctx, deadline, func() bool {
		states, queryErr = x.page.Query(loc)
		return queryErr == nil && len(states) == 1 && ready(states[0])
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, errPollTimeout) {
		return cancelled(err)
	}

	diag := x.diagnostics(&loc, states)
	if len(states) != 1 {
		msg := fmt.Sprintf("expected exactly one element for %s, found %d", loc, len(states))
		if queryErr != nil {
			return errs.WithDiagnostics(errs.Wrap(errs.ElementNotFound, msg, queryErr), diag)
		}
		return errs.WithDiagnostics(errs.New(errs.ElementNotFound, msg), diag)
	}
	return errs.WithDiagnostics(
		errs.Newf(errs.NotInteractable, "%s is not %s (%s)", loc, want, states[0]),
		diag,
	)
}

// assert polls until some element matching the target is visible and, for
// assert-text, contains the expected text.
func (x *execution) assert(ctx context.Context, step scenario.Step, deadline time.Time) error {
	var states []browser.ElementState
	var queryErr error
	err := x.r.poll(ctx, deadline, func() bool {
		states, queryErr = x.page.Query(step.Target)
		if queryErr != nil {
			return false
		}
		for _, s := range states {
			if satisfies(step, s) {
				return true
			}
		}
		return false
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, errPollTimeout) {
		return cancelled(err)
	}

	var msg string
	if step.Kind == scenario.AssertText {
		msg = fmt.Sprintf("timed out after %s waiting for %s to contain %q", x.r.stepTimeout(step), step.Target, step.Text)
	} else {
		msg = fmt.Sprintf("timed out after %s waiting for %s to be visible", x.r.stepTimeout(step), step.Target)
	}
	var e error = errs.New(errs.AssertionTimeout, msg)
	if queryErr != nil {
		e = errs.Wrap(errs.AssertionTimeout, msg, queryErr)
	}
	return errs.WithDiagnostics(e, x.diagnostics(&step.Target, states))
}

func satisfies(step scenario.Step, s browser.ElementState) bool {
	if !s.Visible {
		return false
	}
	if step.Kind == scenario.AssertText {
		return containsText(s.Text, step.Text)
	}
	return true
}

func (x *execution) screenshot(ctx context.Context, step scenario.Step) error {
	if x.r.Evidence == nil {
		return errs.New(errs.FailedPrecondition, "no evidence store configured for screenshots")
	}
	data, err := x.page.Screenshot()
	if err != nil {
		return errs.Wrap(errs.IO, fmt.Sprintf("capture screenshot %s", step.Path), err)
	}
	a, err := x.r.Evidence.Write(ctx, x.sc.Name, step.Path, data)
	if err != nil {
		return err
	}
	x.artifacts = append(x.artifacts, a)
	return nil
}

// captureFailure saves <scenario>-failure.png. Failures here are logged only.
func (x *execution) captureFailure(ctx context.Context) {
	if x.r.Evidence == nil || x.page == nil {
		return
	}
	log := obs.From(ctx)
	data, err := x.page.Screenshot()
	if err != nil {
		log.Warn("failure_screenshot_skipped", "error", err)
		return
	}
	a, err := x.r.Evidence.Write(ctx, x.sc.Name, x.sc.Name+"-failure.png", data)
	if err != nil {
		log.Warn("failure_screenshot_skipped", "error", err)
		return
	}
	x.artifacts = append(x.artifacts, a)
}

// diagnostics snapshots the page for an error. loc and states may be nil.
func (x *execution) diagnostics(loc *browser.Locator, states []browser.ElementState) errs.Diagnostics {
	var d errs.Diagnostics
	if loc != nil {
		d.Locator = loc.String()
		d.MatchCount = len(states)
	}
	for _, s := range states {
		d.Observed = append(d.Observed, s.String())
	}
	snap, err := x.page.Snapshot()
	d.URL = snap.URL
	if err != nil {
		return d
	}
	d.Title = snap.Title
	d.Content = logutil.TruncateForLog(snap.Content, maxDiagnosticContent)
	return d
}

func cancelled(err error) error {
	return errs.Wrap(errs.Unavailable, "step cancelled", err)
}

func remaining(deadline time.Time) time.Duration {
	d := time.Until(deadline)
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}
