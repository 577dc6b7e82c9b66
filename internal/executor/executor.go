// Package executor runs a plan's steps sequentially against the LLM,
// harvesting artifacts from each reply.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/cliengineer/cliengineer/internal/artifact"
	"github.com/cliengineer/cliengineer/internal/contextmgr"
	"github.com/cliengineer/cliengineer/internal/domain"
	"github.com/cliengineer/cliengineer/internal/events"
	"github.com/cliengineer/cliengineer/internal/llmmanager"
	"github.com/cliengineer/cliengineer/internal/provider"
)

// responseHeadroom is reserved out of the provider's context window for
// the model's reply.
const responseHeadroom = 4096

// Executor runs a plan's steps against the LLM manager.
type Executor struct {
	ctxMgr    *contextmgr.Manager
	llm       *llmmanager.Manager
	artifacts *artifact.Manager
	bus       *events.Bus
}

// New creates an Executor.
func New(ctxMgr *contextmgr.Manager, llm *llmmanager.Manager, artifacts *artifact.Manager, bus *events.Bus) *Executor {
	return &Executor{ctxMgr: ctxMgr, llm: llm, artifacts: artifacts, bus: bus}
}

// Execute runs every step of plan sequentially against the conversation
// identified by contextID, returning one StepResult per step in order.
// It does not halt on a failed step.
func (e *Executor) Execute(ctx context.Context, plan *domain.Plan, contextID string) ([]domain.StepResult, error) {
	results := make([]domain.StepResult, 0, len(plan.Steps))

	for i, step := range plan.Steps {
		result := e.runStep(ctx, step, contextID)
		results = append(results, result)

		if e.bus != nil {
			e.bus.Emit(events.Event{
				Kind:     events.KindTaskProgress,
				TaskGoal: plan.Goal,
				Progress: float64(i+1) / float64(len(plan.Steps)),
			})
		}

		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}

	return results, nil
}

func (e *Executor) runStep(ctx context.Context, step domain.Step, contextID string) domain.StepResult {
	prompt := stepPrompt(step)

	if err := e.ctxMgr.AddMessage(ctx, contextID, contextmgr.RoleUser, prompt); err != nil {
		return domain.StepResult{StepID: step.ID, Success: false, Error: err.Error()}
	}

	budget := e.llm.ContextSize() - responseHeadroom
	window := e.ctxMgr.GetMessages(contextID, budget)
	flattened := flatten(window)

	reply, err := e.llm.SendPromptStreaming(ctx, flattened, nil)
	if err != nil {
		return domain.StepResult{StepID: step.ID, Success: false, Error: err.Error()}
	}

	if err := e.ctxMgr.AddMessage(ctx, contextID, contextmgr.RoleAssistant, reply); err != nil {
		return domain.StepResult{StepID: step.ID, Success: false, Error: err.Error()}
	}

	prospects := artifact.ExtractArtifacts(reply)
	var created []string
	for _, p := range prospects {
		art, err := e.artifacts.CreateArtifact(p.Name, p.Type, p.Content, nil)
		if err != nil {
			continue
		}
		created = append(created, art.Path)
	}

	success, failReason := stepOutcome(step.Category, reply, created)

	result := domain.StepResult{
		StepID:           step.ID,
		Success:          success,
		Output:           reply,
		ArtifactsCreated: created,
		TokensUsed:       provider.EstimateTokens(prompt) + provider.EstimateTokens(reply),
	}
	if !success {
		result.Error = failReason
	}
	return result
}

// producesFiles reports whether category is expected to emit artifacts.
func producesFiles(category domain.Category) bool {
	switch category {
	case domain.CategoryCodeGeneration, domain.CategoryFileOperation, domain.CategoryCodeModification, domain.CategoryTesting, domain.CategoryDocumentation:
		return true
	default:
		return false
	}
}

const noChangesNeeded = "no changes needed"

func stepOutcome(category domain.Category, reply string, created []string) (success bool, reason string) {
	if strings.TrimSpace(reply) == "" {
		return false, "empty reply from model"
	}
	if !producesFiles(category) {
		return true, ""
	}
	if len(created) > 0 {
		return true, ""
	}
	if strings.Contains(strings.ToLower(reply), noChangesNeeded) {
		return true, ""
	}
	return false, "no artifacts created and reply did not state no changes needed"
}

// stepPrompt builds the category-specific instruction given to the model.
func stepPrompt(step domain.Step) string {
	var instruction string
	switch step.Category {
	case domain.CategoryAnalysis:
		instruction = "Analyze and report. Produce no files."
	case domain.CategoryCodeGeneration, domain.CategoryFileOperation:
		instruction = "Emit files only via <artifact> blocks."
	case domain.CategoryCodeModification:
		instruction = "Emit the full new content for modified files via <artifact> blocks."
	case domain.CategoryTesting:
		instruction = "Emit test files only via <artifact> blocks."
	case domain.CategoryDocumentation:
		instruction = "Emit markdown files under docs/ via <artifact> blocks."
	case domain.CategoryResearch:
		instruction = "Report findings. Produce no files."
	case domain.CategoryReview:
		instruction = "Report your review. Produce no files."
	default:
		instruction = "Complete the step as described."
	}
	return fmt.Sprintf("Step: %s\n\n%s", step.Description, instruction)
}

func flatten(messages []contextmgr.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "[%s] %s\n\n", m.Role, m.Content)
	}
	return sb.String()
}
