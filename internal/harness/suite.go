package harness

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
)

// Case is one integration test. Setup prepares the devices, Run performs
// the checks and Teardown restores a neutral state. Teardown runs whenever
// Setup succeeded.
type Case interface {
	Name() string
	Setup(ctx context.Context, h *Harness) error
	Run(ctx context.Context, h *Harness) error
	Teardown(ctx context.Context, h *Harness) error
}

// StepFunc is one phase of a FuncCase.
type StepFunc func(ctx context.Context, h *Harness) error

// FuncCase adapts plain functions to Case. Nil phases do nothing.
type FuncCase struct {
	CaseName   string
	SetupFn    StepFunc
	RunFn      StepFunc
	TeardownFn StepFunc
}

// Name implements Case.
func (c FuncCase) Name() string { return c.CaseName }

// Setup implements Case.
func (c FuncCase) Setup(ctx context.Context, h *Harness) error { return call(ctx, h, c.SetupFn) }

// Run implements Case.
func (c FuncCase) Run(ctx context.Context, h *Harness) error { return call(ctx, h, c.RunFn) }

// Teardown implements Case.
func (c FuncCase) Teardown(ctx context.Context, h *Harness) error {
	return call(ctx, h, c.TeardownFn)
}

func call(ctx context.Context, h *Harness, fn StepFunc) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, h)
}

// Suite runs cases sequentially against one harness.
type Suite struct {
	name          string
	harness       *Harness
	cases         []Case
	filter        []string
	stopOnFailure bool
	now           func() time.Time
}

// SuiteOption configures a Suite.
type SuiteOption func(*Suite)

// WithFilter restricts the run to cases whose name matches one of the
// patterns (path.Match syntax, e.g. "shutter/*/lock"). Other cases are
// reported as skipped.
func WithFilter(patterns ...string) SuiteOption {
	return func(s *Suite) { s.filter = append(s.filter, patterns...) }
}

// WithStopOnFailure skips the remaining cases after the first failure.
func WithStopOnFailure(stop bool) SuiteOption {
	return func(s *Suite) { s.stopOnFailure = stop }
}

// NewSuite creates an empty suite.
func NewSuite(name string, h *Harness, opts ...SuiteOption) *Suite {
	s := &Suite{name: name, harness: h, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add appends cases.
func (s *Suite) Add(cases ...Case) {
	s.cases = append(s.cases, cases...)
}

// Cases returns the registered case names in run order.
func (s *Suite) Cases() []string {
	names := make([]string, len(s.cases))
	for i, c := range s.cases {
		names[i] = c.Name()
	}
	return names
}

// Run executes every selected case and returns the report. Cancelling ctx
// skips the cases that have not started.
func (s *Suite) Run(ctx context.Context) *Report {
	logger := s.harness.Logger()
	report := &Report{
		RunID:     uuid.NewString(),
		Suite:     s.name,
		StartedAt: s.now().UTC(),
	}
	logger.Info("suite started", "suite", s.name, "run_id", report.RunID, "cases", len(s.cases))

	halted := ""
	for _, c := range s.cases {
		name := c.Name()

		switch {
		case !s.selected(name):
			report.add(CaseResult{Name: name, Status: StatusSkipped, Error: "not selected"})
			continue
		case ctx.Err() != nil:
			report.add(CaseResult{Name: name, Status: StatusSkipped, Error: ctx.Err().Error()})
			continue
		case halted != "":
			report.add(CaseResult{Name: name, Status: StatusSkipped, Error: "stopped after " + halted + " failed"})
			continue
		}

		result := s.runCase(ctx, c)
		report.add(result)

		switch result.Status {
		case StatusPassed:
			logger.Info("case passed", "case", name, "duration", result.Duration)
		case StatusSkipped:
			logger.Info("case skipped", "case", name, "reason", result.Error)
		default:
			logger.Error("case failed", "case", name, "status", string(result.Status), "error", result.Error)
			if s.stopOnFailure {
				halted = name
			}
		}
	}

	report.finish(s.now())
	logger.Info("suite finished",
		"suite", s.name,
		"run_id", report.RunID,
		"passed", report.Passed,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"duration", report.Duration,
	)
	return report
}

func (s *Suite) selected(name string) bool {
	if len(s.filter) == 0 {
		return true
	}
	for _, pattern := range s.filter {
		if pattern == name {
			return true
		}
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func (s *Suite) runCase(ctx context.Context, c Case) (result CaseResult) {
	start := s.now()
	result.Name = c.Name()
	defer func() {
		result.Duration = s.now().Sub(start)
		result.DurationMS = result.Duration.Milliseconds()
	}()

	if err := guard(ctx, s.harness, c.Setup); err != nil {
		return outcome(result, "setup", err, StatusError)
	}

	runErr := guard(ctx, s.harness, c.Run)

	// Teardown gets its own context so a cancelled run still cleans up.
	tdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.harness.Timeout()*2)
	defer cancel()
	tdErr := guard(tdCtx, s.harness, c.Teardown)

	switch {
	case runErr != nil:
		return outcome(result, "run", runErr, StatusFailed)
	case tdErr != nil:
		return outcome(result, "teardown", tdErr, StatusError)
	}
	result.Status = StatusPassed
	return result
}

// guard runs one phase, converting a panic into an error.
func guard(ctx context.Context, h *Harness, fn StepFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, h)
}

func outcome(result CaseResult, phase string, err error, status Status) CaseResult {
	if errors.Is(err, ErrSkip) {
		result.Status = StatusSkipped
		result.Error = err.Error()
		return result
	}
	result.Status = status
	result.Error = phase + ": " + err.Error()
	return result
}
