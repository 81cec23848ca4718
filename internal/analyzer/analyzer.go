// Package analyzer classifies a task description into the set of agent
// templates that must work on it. Analysis is a pure function over the
// task text; it never fails and has no side effects.
package analyzer

import "strings"

type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Analysis is ephemeral: consumed by the router, never persisted.
type Analysis struct {
	Complexity      Complexity `json:"complexity"`
	Templates       []string   `json:"templates"`
	EstimatedTokens int        `json:"estimated_tokens"`
	CanParallelize  bool       `json:"can_parallelize"`
}

// family keyword tables, checked in fixed order so the resulting template
// list is deterministic.
var families = []struct {
	template string
	keywords []string
}{
	{"researcher", []string{"research", "investigate", "explore", "find out", "look into", "analyze"}},
	{"planner", []string{"plan", "roadmap", "estimate", "break down", "milestones", "schedule"}},
	{"architect", []string{"architecture", "design", "redesign", "structure", "refactor", "schema"}},
	{"coder", []string{"implement", "code", "fix", "build", "bug", "feature", "develop", "write a"}},
	{"tester", []string{"test", "verify", "coverage", "regression", "validate"}},
	{"reviewer", []string{"review", "audit", "inspect", "security check"}},
	{"formatter", []string{"format", "lint", "style", "prettify", "clean up"}},
	{"docwriter", []string{"document", "docs", "readme", "changelog", "comment"}},
}

var complexityMarkers = []string{"complex", "large-scale", "entire system", "full system", "end-to-end", "overhaul"}

const coordinatorTemplate = "orchestrator"

var tokenEstimates = map[Complexity]int{
	ComplexitySimple:   2000,
	ComplexityModerate: 5000,
	ComplexityComplex:  15000,
}

// Analyze maps task text to a classification. Every task gets at least
// one owner: when no family matches, the coder template is the default.
func Analyze(title, description string) Analysis {
	text := strings.ToLower(title + " " + description)

	var templates []string
	for _, f := range families {
		for _, kw := range f.keywords {
			if strings.Contains(text, kw) {
				templates = append(templates, f.template)
				break
			}
		}
	}

	complexity := ComplexitySimple
	if len(templates) == 2 {
		complexity = ComplexityModerate
	}

	marked := false
	for _, m := range complexityMarkers {
		if strings.Contains(text, m) {
			marked = true
			break
		}
	}
	if len(templates) >= 3 || marked {
		complexity = ComplexityComplex
		// A coordinator always leads a complex task
		templates = append([]string{coordinatorTemplate}, templates...)
	}

	if len(templates) == 0 {
		templates = []string{"coder"}
	}

	return Analysis{
		Complexity:      complexity,
		Templates:       templates,
		EstimatedTokens: tokenEstimates[complexity],
		CanParallelize:  len(templates) > 1 && complexity != ComplexitySimple,
	}
}
