// Package interpreter converts raw user input into a structured Task.
// It is intentionally trivial and deterministic; the planner is where
// intelligence lives.
package interpreter

import (
	"fmt"
	"strings"
)

// Task describes what the loop is trying to accomplish: description and
// goal. Constraints is an internal extension carried through to the
// planner's prompt; see DESIGN.md for where it comes from.
type Task struct {
	Description string
	Goal        string
	Constraints string
}

const defaultConstraints = "Follow best practices, write clean code, include error handling"

// Category labels used in the templated goal string. Exported so a
// caller that already knows the category (a CLI subcommand, say)
// can force it via InterpretAs instead of leaving it to the keyword
// heuristic in Interpret.
const (
	CategoryCreation      = "creation"
	CategoryDebugging     = "debugging"
	CategoryTesting       = "testing"
	CategoryReview        = "review"
	CategoryRefactor      = "refactor"
	CategoryDocumentation = "documentation"
	CategoryCompletion    = "completion"
)

// Interpret produces a Task from raw input using keyword heuristics:
// "create|build|generate" → creation; "fix|debug" → debugging; "test" →
// testing; "review" → review; "refactor" → refactor; else → completion.
// Use InterpretAs when the caller already knows the category.
func Interpret(input string) Task {
	return InterpretAs(classify(input), input)
}

// InterpretAs produces a Task from raw input with an explicit category,
// skipping the keyword heuristic entirely.
func InterpretAs(category, input string) Task {
	return Task{
		Description: input,
		Goal:        fmt.Sprintf("%s task: %s", category, input),
		Constraints: defaultConstraints,
	}
}

func classify(input string) string {
	lower := strings.ToLower(input)
	switch {
	case containsAny(lower, "create", "build", "generate"):
		return CategoryCreation
	case containsAny(lower, "fix", "debug"):
		return CategoryDebugging
	case containsAny(lower, "test"):
		return CategoryTesting
	case containsAny(lower, "review"):
		return CategoryReview
	case containsAny(lower, "refactor"):
		return CategoryRefactor
	default:
		return CategoryCompletion
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
