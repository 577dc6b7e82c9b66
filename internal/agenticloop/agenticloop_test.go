package agenticloop

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliengineer/cliengineer/internal/artifact"
	"github.com/cliengineer/cliengineer/internal/contextmgr"
	"github.com/cliengineer/cliengineer/internal/events"
	"github.com/cliengineer/cliengineer/internal/executor"
	"github.com/cliengineer/cliengineer/internal/llmmanager"
	"github.com/cliengineer/cliengineer/internal/planner"
	"github.com/cliengineer/cliengineer/internal/provider"
	"github.com/cliengineer/cliengineer/internal/reviewer"
)

// scriptedProvider replays one reply per SendPrompt call, recording the
// prompt it was given so tests can assert on what later stages saw.
type scriptedProvider struct {
	calls   int
	replies []string
	prompts []string
}

func (p *scriptedProvider) Name() string              { return "scripted" }
func (p *scriptedProvider) ModelName() string         { return "scripted-model" }
func (p *scriptedProvider) ContextSize() int          { return 1_000_000 }
func (p *scriptedProvider) HandlesOwnMetrics() bool   { return true }
func (p *scriptedProvider) SendPrompt(ctx context.Context, prompt string, onChunk provider.ChunkFunc) (*provider.Response, error) {
	p.prompts = append(p.prompts, prompt)
	reply := p.replies[p.calls]
	p.calls++
	return &provider.Response{Text: reply}, nil
}

func newLoop(t *testing.T, p *scriptedProvider, maxIterations int) *Loop {
	t.Helper()
	bus := events.New(100)
	llm := llmmanager.New(p, bus, 0, 0)
	ctxMgr := contextmgr.New(llm, bus, 1_000_000, 0.99)
	dir := t.TempDir()
	artifacts, err := artifact.New(dir, bus)
	require.NoError(t, err)

	pl := planner.New(llm)
	ex := executor.New(ctxMgr, llm, artifacts, bus)
	rv := reviewer.New(llm)

	return New(pl, ex, rv, ctxMgr, artifacts, bus, maxIterations, false, dir)
}

const helloWorldArtifact = `<artifact name="main.go" type="SourceCode">
package main

func main() {}
</artifact>`

// TestLoop_HelloWorldSingleIterationReadyToDeploy covers the
// hello-world scenario: one iteration, one artifact, ready_to_deploy.
func TestLoop_HelloWorldSingleIterationReadyToDeploy(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		"1. Write a hello world program [category: CodeGeneration]\n",
		helloWorldArtifact,
		"quality: Excellent\nsummary: clean hello world\n",
	}}
	loop := newLoop(t, p, 5)

	result := loop.Run(context.Background(), "create a hello world program", "")
	require.NotNil(t, result)
	assert.Equal(t, StatusDone, result.Status)
	assert.Equal(t, 1, result.Iterations)
	require.Len(t, result.StepResults, 1)
	assert.True(t, result.StepResults[0].Success)
	require.Len(t, result.StepResults[0].ArtifactsCreated, 1)
	assert.Equal(t, 3, p.calls)
}

// TestLoop_ExplicitCategoryOverridesKeywordHeuristic covers a command
// word the keyword heuristic doesn't recognize ("docs"): without a
// forced category the task goal would fall through to "completion
// task: ..."; Run's category argument lets the caller force it to
// "documentation task: ..." instead.
func TestLoop_ExplicitCategoryOverridesKeywordHeuristic(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		"1. Write a hello world program [category: CodeGeneration]\n",
		helloWorldArtifact,
		"quality: Excellent\nsummary: clean hello world\n",
	}}
	loop := newLoop(t, p, 5)

	result := loop.Run(context.Background(), "docs: hello world program", "documentation")
	require.NotNil(t, result)
	assert.Equal(t, StatusDone, result.Status)
	require.NotEmpty(t, p.prompts)
	assert.Contains(t, p.prompts[0], "documentation task: docs: hello world program")
}

// TestLoop_SecondIterationPlannerPromptIncludesFirstIterationFeedback
// covers the iteration-with-feedback scenario: the first review
// raises a Major issue, the second iteration's planner prompt includes
// it, and the second review is Excellent with ready_to_deploy, after
// exactly two iterations.
func TestLoop_SecondIterationPlannerPromptIncludesFirstIterationFeedback(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		"1. Write a hello world program [category: CodeGeneration]\n",
		helloWorldArtifact,
		"quality: Fair\nissue: Major|Logic|missing error handling on write|main.go|add error checks\nsummary: needs error handling\n",
		"1. Add error handling to main.go [category: CodeModification]\n",
		helloWorldArtifact,
		"quality: Excellent\nsummary: now handles errors\n",
	}}
	loop := newLoop(t, p, 5)

	result := loop.Run(context.Background(), "create a hello world program", "")
	require.NotNil(t, result)
	assert.Equal(t, StatusDone, result.Status)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 6, p.calls)

	require.Len(t, p.prompts, 6)
	secondPlannerPrompt := p.prompts[3]
	assert.Contains(t, secondPlannerPrompt, "missing error handling on write")
}

// TestLoop_BudgetExhaustedFailsAfterMaxIterations covers termination:
// the loop never runs more than max_iterations iterations, and a
// never-ready review ends in Failed.
func TestLoop_BudgetExhaustedFailsAfterMaxIterations(t *testing.T) {
	neverReady := "quality: Poor\nissue: Major|Logic|still broken|main.go|try again\nsummary: not good enough\n"
	plan := "1. Try again [category: CodeModification]\n"
	p := &scriptedProvider{replies: []string{
		plan, helloWorldArtifact, neverReady,
		plan, helloWorldArtifact, neverReady,
	}}
	loop := newLoop(t, p, 2)

	result := loop.Run(context.Background(), "create a hello world program", "")
	require.NotNil(t, result)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 2, result.Iterations)
	assert.Contains(t, result.Reason, "budget exhausted")
}

// TestLoop_UnparsablePlanTwiceFailsWithNoArtifacts covers the
// unparsable-plan scenario: prose with no step markers, twice, fails the
// run before any step executes, so no artifacts are created.
func TestLoop_UnparsablePlanTwiceFailsWithNoArtifacts(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		"I don't understand the request.",
		"Still not sure what you want.",
	}}
	loop := newLoop(t, p, 5)

	result := loop.Run(context.Background(), "do something vague", "")
	require.NotNil(t, result)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Empty(t, result.StepResults)
	assert.Equal(t, 2, p.calls)
}

func TestUnresolvedIssues_FormatsEachIssueFromLastReview(t *testing.T) {
	p := &scriptedProvider{replies: []string{
		"1. Write a hello world program [category: CodeGeneration]\n",
		helloWorldArtifact,
		"quality: Good\nissue: Minor|CodeStyle|missing trailing newline|main.go|add newline\nsummary: minor nit\n",
	}}
	loop := newLoop(t, p, 1)

	result := loop.Run(context.Background(), "create a hello world program", "")
	unresolved := UnresolvedIssues(result)
	require.Len(t, unresolved, 1)
	assert.True(t, strings.Contains(unresolved[0], "missing trailing newline"))
}
