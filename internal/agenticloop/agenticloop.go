// Package agenticloop implements the agentic loop: the
// interpret→plan→execute→review state machine, rebuilding iteration
// context at each boundary until the run is Done or Failed.
package agenticloop

import (
	"context"
	"fmt"

	"github.com/cliengineer/cliengineer/internal/artifact"
	"github.com/cliengineer/cliengineer/internal/contextmgr"
	"github.com/cliengineer/cliengineer/internal/domain"
	"github.com/cliengineer/cliengineer/internal/events"
	"github.com/cliengineer/cliengineer/internal/executor"
	"github.com/cliengineer/cliengineer/internal/fsscan"
	"github.com/cliengineer/cliengineer/internal/interpreter"
	"github.com/cliengineer/cliengineer/internal/planner"
	"github.com/cliengineer/cliengineer/internal/reviewer"
)

// Status is the loop's terminal state.
type Status string

const (
	StatusDone   Status = "Done"
	StatusFailed Status = "Failed"
)

// Result is what Run returns: the terminal status plus enough detail to
// render a summary or compute a process exit code.
type Result struct {
	Status     Status
	Iterations int
	Summary    string
	Reason     string
	LastReview *domain.ReviewResult
	Steps      []domain.Step
	StepResults []domain.StepResult
}

// Loop wires the four stages together.
type Loop struct {
	planner   *planner.Planner
	executor  *executor.Executor
	reviewer  *reviewer.Reviewer
	ctxMgr    *contextmgr.Manager
	artifacts *artifact.Manager
	bus       *events.Bus

	maxIterations int
	cleanupOnExit bool
	artifactDir   string
}

// New creates a Loop.
func New(p *planner.Planner, e *executor.Executor, r *reviewer.Reviewer, ctxMgr *contextmgr.Manager, artifacts *artifact.Manager, bus *events.Bus, maxIterations int, cleanupOnExit bool, artifactDir string) *Loop {
	return &Loop{
		planner:       p,
		executor:      e,
		reviewer:      r,
		ctxMgr:        ctxMgr,
		artifacts:     artifacts,
		bus:           bus,
		maxIterations: maxIterations,
		cleanupOnExit: cleanupOnExit,
		artifactDir:   artifactDir,
	}
}

func (l *Loop) emit(e events.Event) {
	if l.bus != nil {
		l.bus.Emit(e)
	}
}

// Run drives the state machine for rawInput to completion. category
// forces the interpreter category (see interpreter.CategoryCreation et
// al.) rather than letting it infer one from keywords in rawInput; pass
// "" to fall back to the keyword heuristic.
func (l *Loop) Run(ctx context.Context, rawInput, category string) *Result {
	var task interpreter.Task
	if category == "" {
		task = interpreter.Interpret(rawInput)
	} else {
		task = interpreter.InterpretAs(category, rawInput)
	}
	l.emit(events.Event{Kind: events.KindTaskStarted, TaskGoal: task.Goal})

	if ctx.Err() != nil {
		return l.failed(0, nil, nil, nil, "cancelled before planning")
	}

	contextID := l.ctxMgr.CreateContext(map[string]string{"goal": task.Goal})

	var iter *domain.IterationContext
	var lastSteps []domain.Step
	var lastResults []domain.StepResult
	var lastReview *domain.ReviewResult

	for i := 0; i < l.maxIterations; i++ {
		plan, err := l.planner.Plan(ctx, task, iter)
		if err != nil || plan == nil || len(plan.Steps) == 0 {
			reason := "planner produced an empty plan"
			if err != nil {
				reason = err.Error()
			}
			return l.failed(i, lastSteps, lastResults, lastReview, reason)
		}
		lastSteps = plan.Steps

		if ctx.Err() != nil {
			return l.failed(i, lastSteps, lastResults, lastReview, "cancelled after planning")
		}

		results, err := l.executor.Execute(ctx, plan, contextID)
		lastResults = results
		if err != nil && ctx.Err() != nil {
			return l.failed(i, lastSteps, lastResults, lastReview, "cancelled during execution")
		}

		review := l.reviewer.Review(ctx, plan, plan.Steps, results)
		lastReview = review

		if ctx.Err() != nil {
			return l.failed(i, lastSteps, lastResults, lastReview, "cancelled after review")
		}

		if review.ReadyToDeploy {
			return l.done(i, lastSteps, lastResults, review)
		}

		if i+1 >= l.maxIterations {
			return l.failed(i, lastSteps, lastResults, lastReview, "budget exhausted: max_iterations reached")
		}

		iter = l.rebuildIterationContext(i+1, review)
	}

	return l.failed(l.maxIterations, lastSteps, lastResults, lastReview, "budget exhausted: max_iterations reached")
}

// rebuildIterationContext handles the Reviewing→Planning
// transition: scan the artifact directory for existing_files, copy
// pending issues from the review, and append a progress summary.
func (l *Loop) rebuildIterationContext(iteration int, review *domain.ReviewResult) *domain.IterationContext {
	existing, err := fsscan.Scan(l.artifactDir)
	if err != nil {
		existing = map[string]domain.ExistingFile{}
	}
	return &domain.IterationContext{
		Iteration:       iteration,
		ExistingFiles:   existing,
		LastReview:      review,
		PendingIssues:   review.Issues,
		ProgressSummary: review.Summary,
	}
}

func (l *Loop) done(iteration int, steps []domain.Step, results []domain.StepResult, review *domain.ReviewResult) *Result {
	l.emit(events.Event{Kind: events.KindTaskCompleted, Summary: review.Summary})
	if l.cleanupOnExit && l.artifacts != nil {
		_ = l.artifacts.Cleanup()
	}
	return &Result{
		Status:      StatusDone,
		Iterations:  iteration + 1,
		Summary:     review.Summary,
		LastReview:  review,
		Steps:       steps,
		StepResults: results,
	}
}

func (l *Loop) failed(iteration int, steps []domain.Step, results []domain.StepResult, review *domain.ReviewResult, reason string) *Result {
	summary := reason
	if review != nil && review.Summary != "" {
		summary = review.Summary
	}
	l.emit(events.Event{Kind: events.KindTaskFailed, Summary: summary, Reason: reason})
	return &Result{
		Status:      StatusFailed,
		Iterations:  iteration + 1,
		Summary:     summary,
		Reason:      reason,
		LastReview:  review,
		Steps:       steps,
		StepResults: results,
	}
}

// UnresolvedIssues collects every issue from the last review for a
// failure report, skipping nothing; the CLI shell decides how much to
// render.
func UnresolvedIssues(r *Result) []string {
	if r == nil || r.LastReview == nil {
		return nil
	}
	out := make([]string, 0, len(r.LastReview.Issues))
	for _, issue := range r.LastReview.Issues {
		out = append(out, fmt.Sprintf("[%s/%s] %s", issue.Severity, issue.Category, issue.Description))
	}
	return out
}
