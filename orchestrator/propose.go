package orchestrator

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/ccos-project/ccos-core/manifest"
	"github.com/ccos-project/ccos-core/plan"
)

// Arbiter is the external planning process propose_steps delegates to
// (spec.md §4.10). Implementations live in the arbiter package; this
// interface keeps the orchestrator decoupled from any one provider's
// wire protocol.
type Arbiter interface {
	ProposeSteps(ctx context.Context, goal, intent string, answers map[string]string, snapshot []*manifest.CapabilityManifest) (string, error)
}

// questionWords flags a free-form line as a clarifying question rather
// than a proposed step (spec.md §4.10's propose_steps contract).
var questionWords = []string{"who", "what", "where", "why", "how"}

var markdownCodeBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// rawStep is the JSON shape the arbiter is asked to respond with; a
// free-form text response is also accepted and parsed line by line.
type rawStep struct {
	Name            string   `json:"name"`
	CapabilityClass string   `json:"capability_class"`
	RequiredInputs  []string `json:"required_inputs"`
	ExpectedOutputs []string `json:"expected_outputs"`
	Description     string   `json:"description"`
}

// ProposeSteps delegates to arbiter, parses its response, and falls
// back to a static default step list if parsing yields nothing (spec.md
// §4.10). A nil arbiter always takes the fallback path.
func ProposeSteps(ctx context.Context, arbiter Arbiter, goal, intent string, answers map[string]string, snapshot []*manifest.CapabilityManifest) ([]plan.ProposedStep, []string) {
	var warnings []string

	if arbiter == nil {
		warnings = append(warnings, "no arbiter configured, using default step list")
		return defaultSteps(goal), warnings
	}

	response, err := arbiter.ProposeSteps(ctx, goal, intent, answers, snapshot)
	if err != nil {
		warnings = append(warnings, "arbiter call failed: "+err.Error())
		return defaultSteps(goal), warnings
	}

	steps := ParseProposedSteps(response)
	if len(steps) == 0 {
		warnings = append(warnings, "arbiter response parsed to zero steps, using default step list")
		return defaultSteps(goal), warnings
	}
	return steps, warnings
}

// ParseProposedSteps parses an arbiter's raw response into proposed
// steps: a JSON array first, falling back to line-based free-form
// parsing that drops question-like lines.
func ParseProposedSteps(response string) []plan.ProposedStep {
	if steps, ok := tryParseJSONSteps(response); ok {
		return steps
	}
	return parseFreeformSteps(response)
}

func tryParseJSONSteps(response string) ([]plan.ProposedStep, bool) {
	cleaned := stripMarkdownCodeBlocks(response)
	start := strings.IndexByte(cleaned, '[')
	end := strings.LastIndexByte(cleaned, ']')
	if start == -1 || end == -1 || end < start {
		return nil, false
	}

	var raw []rawStep
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &raw); err != nil {
		return nil, false
	}

	steps := make([]plan.ProposedStep, 0, len(raw))
	for i, r := range raw {
		if isQuestion(r.Name) || isQuestion(r.Description) {
			continue
		}
		steps = append(steps, plan.ProposedStep{
			StepID:          stepID(i),
			Name:            r.Name,
			CapabilityClass: r.CapabilityClass,
			RequiredInputs:  r.RequiredInputs,
			ExpectedOutputs: r.ExpectedOutputs,
			Description:     r.Description,
		})
	}
	return steps, len(steps) > 0
}

func parseFreeformSteps(response string) []plan.ProposedStep {
	var steps []plan.ProposedStep
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(trimListMarker(line))
		if line == "" || isQuestion(line) {
			continue
		}
		name, class := splitNameAndClass(line)
		steps = append(steps, plan.ProposedStep{
			StepID:          stepID(len(steps)),
			Name:            name,
			CapabilityClass: class,
			Description:     line,
		})
	}
	return steps
}

// trimListMarker strips a leading "1. ", "- ", or "* " list marker.
func trimListMarker(line string) string {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimPrefix(trimmed, "- ")
	trimmed = strings.TrimPrefix(trimmed, "* ")
	if idx := strings.Index(trimmed, ". "); idx > 0 && idx <= 3 {
		if _, err := strconv.Atoi(trimmed[:idx]); err == nil {
			trimmed = trimmed[idx+2:]
		}
	}
	return trimmed
}

// splitNameAndClass pulls a trailing "(capability.class)" token off a
// free-form line, if present, treating the rest as the step name.
func splitNameAndClass(line string) (name, class string) {
	if open := strings.LastIndexByte(line, '('); open != -1 {
		if close := strings.LastIndexByte(line, ')'); close > open {
			class = strings.TrimSpace(line[open+1 : close])
			name = strings.TrimSpace(line[:open])
			if class != "" && name != "" {
				return name, class
			}
		}
	}
	return line, slugify(line)
}

func slugify(text string) string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return strings.Join(fields, ".")
}

// isQuestion flags a line as a clarifying question rather than a step:
// a trailing "?" or a leading who/what/where/why/how word (spec.md
// §4.10).
func isQuestion(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, w := range questionWords {
		if strings.HasPrefix(lower, w+" ") || strings.HasPrefix(lower, w+"'s ") {
			return true
		}
	}
	return false
}

func stripMarkdownCodeBlocks(text string) string {
	if m := markdownCodeBlockPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

func stepID(index int) string {
	return "step-" + strconv.Itoa(index+1)
}

// defaultSteps is the statically defined fallback plan.ProposeSteps
// uses when the arbiter is unavailable or its response parses to
// nothing usable (spec.md §4.10).
func defaultSteps(goal string) []plan.ProposedStep {
	return []plan.ProposedStep{
		{
			StepID:          "step-1",
			Name:            "manual review",
			CapabilityClass: "plan.manual_review",
			RequiredInputs:  []string{"goal"},
			ExpectedOutputs: []string{"review_notes"},
			Description:     "no arbiter proposal available, route " + goal + " to manual review",
		},
	}
}
