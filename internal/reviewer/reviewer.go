// Package reviewer asks the LLM to judge a completed plan's step
// results and returns a ReviewResult, never crashing the loop on a
// malformed reply.
package reviewer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cliengineer/cliengineer/internal/domain"
	"github.com/cliengineer/cliengineer/internal/llmmanager"
)

// Reviewer judges a plan's executed steps and decides deploy-readiness.
type Reviewer struct {
	llm *llmmanager.Manager
}

// New creates a Reviewer bound to the given LLM manager.
func New(llm *llmmanager.Manager) *Reviewer {
	return &Reviewer{llm: llm}
}

const outputExcerptLimit = 200

// Review produces a ReviewResult for plan given its step results.
func (r *Reviewer) Review(ctx context.Context, plan *domain.Plan, steps []domain.Step, results []domain.StepResult) *domain.ReviewResult {
	prompt := BuildPrompt(plan, steps, results)

	reply, err := r.llm.SendPrompt(ctx, prompt)
	if err != nil {
		return parseFailureResult(fmt.Sprintf("review LLM call failed: %v", err), plan, steps, results)
	}

	rr, ok := parseReview(reply)
	if !ok {
		return parseFailureResult("could not parse review response", plan, steps, results)
	}

	rr.ReadyToDeploy = deployReady(rr, plan, steps, results)
	return rr
}

// BuildPrompt constructs the review prompt: the plan goal, per-step
// {description, success, output-excerpt, artifacts}, and the output
// schema.
func BuildPrompt(plan *domain.Plan, steps []domain.Step, results []domain.StepResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Goal: %s\n\n", plan.Goal)

	byID := make(map[string]domain.StepResult, len(results))
	for _, res := range results {
		byID[res.StepID] = res
	}

	sb.WriteString("Steps:\n")
	for _, step := range steps {
		res := byID[step.ID]
		excerpt := res.Output
		if len(excerpt) > outputExcerptLimit {
			excerpt = excerpt[:outputExcerptLimit]
		}
		fmt.Fprintf(&sb, "- %s | description: %s | success: %t | output: %q | artifacts: %v\n",
			step.ID, step.Description, res.Success, excerpt, res.ArtifactsCreated)
	}

	sb.WriteString("\nRespond with lines in the form:\n")
	sb.WriteString("quality: <Excellent|Good|Fair|Poor>\n")
	sb.WriteString("issue: <Severity>|<Category>|<description>|<location>|<suggestion>\n")
	sb.WriteString("suggestion: <text>\n")
	sb.WriteString("summary: <text>\n")
	return sb.String()
}

var (
	qualityLine    = regexp.MustCompile(`(?mi)^\s*quality:\s*(\w+)\s*$`)
	issueLine      = regexp.MustCompile(`(?mi)^\s*issue:\s*(.+)$`)
	suggestionLine = regexp.MustCompile(`(?mi)^\s*suggestion:\s*(.+)$`)
	summaryLine    = regexp.MustCompile(`(?mi)^\s*summary:\s*(.+)$`)
)

func parseReview(reply string) (*domain.ReviewResult, bool) {
	qm := qualityLine.FindStringSubmatch(reply)
	if qm == nil {
		return nil, false
	}
	quality := domain.Quality(titleCase(qm[1]))
	if !validQuality(quality) {
		return nil, false
	}

	var issues []domain.Issue
	for _, m := range issueLine.FindAllStringSubmatch(reply, -1) {
		parts := strings.SplitN(m[1], "|", 5)
		if len(parts) != 5 {
			continue
		}
		issues = append(issues, domain.Issue{
			Severity:    domain.Severity(strings.TrimSpace(parts[0])),
			Category:    domain.IssueCategory(strings.TrimSpace(parts[1])),
			Description: strings.TrimSpace(parts[2]),
			Location:    strings.TrimSpace(parts[3]),
			Suggestion:  strings.TrimSpace(parts[4]),
		})
	}

	var suggestions []string
	for _, m := range suggestionLine.FindAllStringSubmatch(reply, -1) {
		suggestions = append(suggestions, strings.TrimSpace(m[1]))
	}

	summary := ""
	if m := summaryLine.FindStringSubmatch(reply); m != nil {
		summary = strings.TrimSpace(m[1])
	}

	return &domain.ReviewResult{
		OverallQuality: quality,
		Issues:         issues,
		Suggestions:    suggestions,
		Summary:        summary,
	}, true
}

func titleCase(s string) string {
	s = strings.ToLower(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func validQuality(q domain.Quality) bool {
	switch q {
	case domain.QualityExcellent, domain.QualityGood, domain.QualityFair, domain.QualityPoor:
		return true
	default:
		return false
	}
}

// parseFailureResult handles an unparsable reply: quality downgrades to
// Fair with an Info issue describing the problem.
func parseFailureResult(reason string, plan *domain.Plan, steps []domain.Step, results []domain.StepResult) *domain.ReviewResult {
	rr := &domain.ReviewResult{
		OverallQuality: domain.QualityFair,
		Issues: []domain.Issue{{
			Severity:    domain.SeverityInfo,
			Category:    domain.IssueCategoryBestPractices,
			Description: reason,
		}},
		Summary: reason,
	}
	rr.ReadyToDeploy = deployReady(rr, plan, steps, results)
	return rr
}

// deployReady decides whether a review's findings clear the bar to ship.
func deployReady(rr *domain.ReviewResult, plan *domain.Plan, steps []domain.Step, results []domain.StepResult) bool {
	critical, major := 0, 0
	for _, issue := range rr.Issues {
		switch issue.Severity {
		case domain.SeverityCritical:
			critical++
		case domain.SeverityMajor:
			major++
		}
	}
	if critical > 0 || major > 1 {
		return false
	}
	if rr.OverallQuality != domain.QualityExcellent && rr.OverallQuality != domain.QualityGood {
		return false
	}

	byID := make(map[string]domain.StepResult, len(results))
	for _, res := range results {
		byID[res.StepID] = res
	}
	for _, step := range steps {
		res, ok := byID[step.ID]
		if ok && res.Success {
			continue
		}
		if !acknowledgedOmission(rr.Issues, step.ID) {
			return false
		}
	}
	return true
}

func acknowledgedOmission(issues []domain.Issue, stepID string) bool {
	for _, issue := range issues {
		if strings.Contains(issue.Location, stepID) || strings.Contains(issue.Description, stepID) {
			return true
		}
	}
	return false
}
