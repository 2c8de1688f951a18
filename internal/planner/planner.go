// Package planner turns a free-text question into a query plan, or into a
// clarification when the question cannot be resolved.
package planner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/user/healthchat/internal/terms"
	"github.com/user/healthchat/internal/types"
)

const (
	MinWords     = 2
	DefaultLimit = 10
)

// Result holds exactly one of Plan or Clarification.
type Result struct {
	Plan          *types.Plan
	Clarification *types.Clarification
}

// Options offered when a question cannot be planned.
var ClarificationOptions = []string{
	"Show my recent visits",
	"List my current medications",
	"Show my latest test results",
	"Show my conditions",
	"Show my allergies",
}

// Types that usually return many records get a default limit.
var highVolume = map[types.ResourceType]bool{
	types.Observation:       true,
	types.Encounter:         true,
	types.DiagnosticReport:  true,
	types.DocumentReference: true,
}

var recencyWords = map[string]bool{
	"recent":   true,
	"recently": true,
	"latest":   true,
	"newest":   true,
	"last":     true,
}

var ordinals = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

var (
	recordRe  = regexp.MustCompile(`\brecord\s+(?:number\s+|no\.?\s*)?(\d+)\b`)
	hashRe    = regexp.MustCompile(`#\s*(\d+)\b`)
	numeralRe = regexp.MustCompile(`\b(\d+)(?:st|nd|rd|th)\b`)
	wordRe    = regexp.MustCompile(`[a-z0-9#'-]+`)
)

var (
	localOnlyPhrases  = []string{"offline", "on this device", "on my phone", "locally"}
	remoteOnlyPhrases = []string{"from the server", "refresh", "latest from"}
)

// Planner builds plans. It keeps no per-query state.
type Planner struct {
	terms *terms.Translator
}

func New(t *terms.Translator) *Planner {
	if t == nil {
		t = terms.New()
	}
	return &Planner{terms: t}
}

// Plan interprets text for subject. history may be nil; when given, a
// question that names only a record index ("show me the second one") reuses
// the resource type of the latest turn.
func (p *Planner) Plan(text string, subject types.SubjectID, history *History) Result {
	lower := strings.ToLower(strings.TrimSpace(text))
	words := wordRe.FindAllString(lower, -1)
	if len(words) < MinWords {
		return clarify("Your question is too short to act on.")
	}

	index, hasIndex := extractIndex(lower, words)
	bucket, hasBucket := p.terms.TranslateCodeSearch(lower)
	rt, hasType := p.terms.Translate(lower)

	if !hasType && hasBucket {
		rt, hasType = types.Observation, true
	}
	if !hasType && hasIndex {
		rt, hasType = history.LastResourceType()
	}
	if !hasType {
		return clarify("I couldn't tell which part of your record you're asking about.")
	}

	var filters types.Filters
	if hasBucket && rt == types.Observation {
		filters.CodeSearch = bucket.CodeSearch()
	}
	recent := hasRecency(words)
	if recent {
		filters.Sort = &types.SortSpec{Descending: true}
	}
	// A record number addresses the whole filtered list, so the default
	// page limit would hide every record past it.
	switch {
	case hasIndex && recent:
		filters.Limit = max(DefaultLimit, index+1)
	case hasIndex:
	case recent || highVolume[rt]:
		filters.Limit = DefaultLimit
	}

	plan := &types.Plan{
		Text:         text,
		Subject:      subject,
		ResourceType: rt,
		Filters:      filters,
		Strategy:     strategyFor(lower),
	}
	if hasIndex {
		plan.RecordIndex = &index
	}
	plan.FallbackToRemote = plan.Strategy != types.StrategyLocalOnly
	return Result{Plan: plan}
}

func clarify(reason string) Result {
	return Result{Clarification: &types.Clarification{
		Reason:  reason,
		Options: append([]string(nil), ClarificationOptions...),
	}}
}

// extractIndex finds a 1-based record reference and returns it zero-based.
func extractIndex(lower string, words []string) (int, bool) {
	for _, re := range []*regexp.Regexp{recordRe, hashRe, numeralRe} {
		if m := re.FindStringSubmatch(lower); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 {
				return n - 1, true
			}
		}
	}
	for _, w := range words {
		if n, ok := ordinals[w]; ok {
			return n - 1, true
		}
	}
	return 0, false
}

func hasRecency(words []string) bool {
	for _, w := range words {
		if recencyWords[w] {
			return true
		}
	}
	return false
}

func strategyFor(lower string) types.Strategy {
	for _, p := range localOnlyPhrases {
		if strings.Contains(lower, p) {
			return types.StrategyLocalOnly
		}
	}
	for _, p := range remoteOnlyPhrases {
		if strings.Contains(lower, p) {
			return types.StrategyRemoteOnly
		}
	}
	return types.StrategyLocalWithFallback
}
