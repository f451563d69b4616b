// Package scores extracts category scores from free-form analysis text.
//
// This is the only structured-data boundary between the language model and
// the rest of the system, so it is kept as an isolated pure function:
// Extract never fails, regardless of how malformed the input is, and always
// returns a mapping containing at least the "overall" key.
package scores

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Analysis reports are expected (not guaranteed) to contain table rows of the
// rough shape "<category> | <number>/10 |". The "/10" suffix is optional so
// plain "<category> | <number> |" rows are picked up too.
var (
	rowPattern     = regexp.MustCompile(`([a-z][a-z0-9 _./&()'-]*?)\s*\|\s*(\d+(?:\.\d+)?)(?:\s*/\s*10)?\s*\|`)
	overallPattern = regexp.MustCompile(`overall[a-z0-9 _./&()'-]*?\s*\|\s*(\d+(?:\.\d+)?)(?:\s*/\s*10)?\s*\|`)
	separatorRuns  = regexp.MustCompile(`[^a-z0-9]+`)
)

const overallKey = "overall"

// Extract parses a block of generated analysis text and returns a mapping of
// category name to numeric score plus an "overall" entry.
//
// Matching is done against a lower-cased copy; the input is never mutated.
// Category labels are normalized (lower-cased, non-alphanumeric runs collapsed
// to "_"). An explicit overall row wins; otherwise overall is synthesized as
// the mean of the category scores; with no scores at all the result is
// exactly {"overall": 0}.
func Extract(text string) map[string]float64 {
	lower := strings.ToLower(text)

	categories := make(map[string]float64)
	order := make([]string, 0, 8)
	for _, m := range rowPattern.FindAllStringSubmatch(lower, -1) {
		key := normalizeCategory(m[1])
		if key == "" || strings.Contains(key, overallKey) {
			continue
		}
		value, ok := parseScore(m[2])
		if !ok {
			continue
		}
		if _, seen := categories[key]; seen {
			// First match wins for a repeated category.
			continue
		}
		categories[key] = value
		order = append(order, key)
	}

	result := make(map[string]float64, len(categories)+1)
	for k, v := range categories {
		result[k] = v
	}

	if overall, ok := extractOverall(lower); ok {
		result[overallKey] = overall
		return result
	}

	if len(order) > 0 {
		var sum float64
		for _, k := range order {
			sum += categories[k]
		}
		result[overallKey] = sum / float64(len(order))
		return result
	}

	return map[string]float64{overallKey: 0}
}

func extractOverall(lower string) (float64, bool) {
	m := overallPattern.FindStringSubmatch(lower)
	if m == nil {
		return 0, false
	}
	return parseScore(m[1])
}

// parseScore parses a numeric score, silently skipping unparseable matches.
// Values above 10 are assumed to be on a 0-100 scale and converted down,
// matching how generated reports occasionally render percentages.
func parseScore(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v > 10 {
		v = math.Round(v/10*10) / 10
	}
	return v, true
}

func normalizeCategory(label string) string {
	collapsed := separatorRuns.ReplaceAllString(strings.ToLower(label), "_")
	return strings.Trim(collapsed, "_")
}
