// Package planner turns a task plus iteration feedback into a validated
// domain.Plan by prompting the LLM manager and parsing its reply.
package planner

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cliengineer/cliengineer/internal/domain"
	"github.com/cliengineer/cliengineer/internal/interpreter"
	"github.com/cliengineer/cliengineer/internal/llmmanager"
)

// ParseError is returned when the model's reply still has no parseable
// steps after one reprompt.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("planner: %s", e.Reason) }

// Planner turns a task into a sequence of concrete steps.
type Planner struct {
	llm *llmmanager.Manager
}

// New creates a Planner bound to the given LLM manager.
func New(llm *llmmanager.Manager) *Planner {
	return &Planner{llm: llm}
}

// stepLine matches the canonical template line: "N. description [category: X]".
var stepLine = regexp.MustCompile(`(?m)^\s*(\d+)\.\s*(.+?)\s*(?:\[category:\s*([A-Za-z]+)\s*\])?\s*$`)

// Plan produces a validated domain.Plan for task, given the prior
// iteration context (nil on the first iteration).
func (p *Planner) Plan(ctx context.Context, task interpreter.Task, iter *domain.IterationContext) (*domain.Plan, error) {
	prompt := BuildPrompt(task, iter)

	reply, err := p.llm.SendPrompt(ctx, prompt)
	if err != nil {
		return nil, err
	}

	steps := parseSteps(reply, iter)
	if len(steps) == 0 {
		// One reprompt with stricter formatting instructions.
		reply, err = p.llm.SendPrompt(ctx, prompt+"\n\n"+strictFormatInstructions)
		if err != nil {
			return nil, err
		}
		steps = parseSteps(reply, iter)
		if len(steps) == 0 {
			return nil, &ParseError{Reason: "LLM produced unparsable plan twice"}
		}
	}

	return &domain.Plan{
		Goal:         task.Goal,
		Steps:        steps,
		Dependencies: map[string][]string{},
		Complexity:   complexityFor(len(steps)),
	}, nil
}

const schemaTemplate = `Respond with one numbered line per step, in the form:
N. <description of the step> [category: <Category>]

Category must be one of: Analysis, FileOperation, CodeGeneration, CodeModification, Testing, Documentation, Research, Review.
Each line should describe: inputs needed, expected outputs, and success criteria, in prose.`

const strictFormatInstructions = `Your previous reply could not be parsed. Respond with ONLY numbered lines in the exact form:
1. <description> [category: <Category>]
2. <description> [category: <Category>]
No other text.`

// BuildPrompt constructs the planning prompt: the goal, each known
// existing file with size/type, pending issues from the last review,
// and the output schema.
func BuildPrompt(task interpreter.Task, iter *domain.IterationContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n", task.Goal)
	fmt.Fprintf(&sb, "Constraints: %s\n\n", task.Constraints)

	if iter != nil && len(iter.ExistingFiles) > 0 {
		sb.WriteString("Existing files:\n")
		for path, f := range iter.ExistingFiles {
			fmt.Fprintf(&sb, "- %s (%d bytes, %s)\n", path, f.Size, f.Type)
		}
		sb.WriteString("\n")
	}

	if iter != nil && len(iter.PendingIssues) > 0 {
		sb.WriteString("Issues from the previous review to address:\n")
		for _, issue := range iter.PendingIssues {
			fmt.Fprintf(&sb, "- [%s] %s: %s\n", issue.Severity, issue.Category, issue.Description)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(schemaTemplate)
	return sb.String()
}

func parseSteps(reply string, iter *domain.IterationContext) []domain.Step {
	matches := stepLine.FindAllStringSubmatch(reply, -1)
	steps := make([]domain.Step, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		description := strings.TrimSpace(m[2])
		if description == "" {
			continue
		}

		category := domain.Category(strings.TrimSpace(m[3]))
		if !validCategory(category) {
			category = categorizeFromKeywords(description)
		}
		category = applyAdaptationRule(category, description, iter)

		steps = append(steps, domain.Step{
			ID:              fmt.Sprintf("step-%d", n),
			Description:     description,
			Category:        category,
			SuccessCriteria: "step completes without error and satisfies its description",
			EstimatedTokens: estimateStepTokens(description),
		})
	}
	return steps
}

func validCategory(c domain.Category) bool {
	switch c {
	case domain.CategoryAnalysis, domain.CategoryFileOperation, domain.CategoryCodeGeneration,
		domain.CategoryCodeModification, domain.CategoryTesting, domain.CategoryDocumentation,
		domain.CategoryResearch, domain.CategoryReview:
		return true
	default:
		return false
	}
}

// categorizeFromKeywords falls back to a keyword scan when a step has
// no explicit [category: ...] tag: "write", "modify", "test",
// "document", "analyze", "research", "review".
func categorizeFromKeywords(description string) domain.Category {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "modify"):
		return domain.CategoryCodeModification
	case strings.Contains(lower, "write"):
		return domain.CategoryCodeGeneration
	case strings.Contains(lower, "test"):
		return domain.CategoryTesting
	case strings.Contains(lower, "document"):
		return domain.CategoryDocumentation
	case strings.Contains(lower, "analyze"):
		return domain.CategoryAnalysis
	case strings.Contains(lower, "research"):
		return domain.CategoryResearch
	case strings.Contains(lower, "review"):
		return domain.CategoryReview
	default:
		return domain.CategoryCodeGeneration
	}
}

// applyAdaptationRule forces a step's category to CodeModification when
// its description targets a file already present in existing_files.
func applyAdaptationRule(category domain.Category, description string, iter *domain.IterationContext) domain.Category {
	if iter == nil {
		return category
	}
	for path := range iter.ExistingFiles {
		if strings.Contains(description, path) {
			return domain.CategoryCodeModification
		}
	}
	return category
}

func estimateStepTokens(description string) int {
	n := len(description) / 4
	if n == 0 {
		n = 1
	}
	return n
}

func complexityFor(stepCount int) domain.Complexity {
	switch {
	case stepCount <= 3:
		return domain.ComplexitySimple
	case stepCount <= 10:
		return domain.ComplexityMedium
	default:
		return domain.ComplexityComplex
	}
}
