package compliance

import (
	"sort"
	"strings"
)

// Result is implemented by ObjectCompliance and ObjectTagCompliance.
type Result interface {
	Kind() ObjectType
	Name() string
	ActiveViolations() []Violation
	WhitelistedViolations() []Violation
	NonCompliant() bool
	NoRulesApplicable() bool
	searchTerms() []string
}

func (c ObjectCompliance) Kind() ObjectType { return c.ObjectType }
func (c ObjectCompliance) Name() string { return c.ObjectName }

func (c ObjectCompliance) searchTerms() []string {
	terms := []string{c.ObjectName, c.Owner}
	for _, ref := range c.ApplicableRules {
		terms = append(terms, ref.RuleID, ref.RuleName)
	}
	return terms
}

func (c ObjectTagCompliance) Kind() ObjectType { return c.ObjectType }
func (c ObjectTagCompliance) Name() string { return c.ObjectName }

func (c ObjectTagCompliance) searchTerms() []string {
	terms := append([]string{c.ObjectName, c.Owner}, c.AssignedTags...)
	for _, v := range c.Violations {
		terms = append(terms, v.TagName)
	}
	return terms
}

type Summary struct {
	Total                 int     `json:"total"`
	Compliant             int     `json:"compliant"`
	NonCompliant          int     `json:"nonCompliant"`
	NoRulesApplicable     int     `json:"noRulesApplicable"`
	WithWhitelisted       int     `json:"withWhitelisted"`
	ActiveViolations      int     `json:"activeViolations"`
	WhitelistedViolations int     `json:"whitelistedViolations"`
	ComplianceRate        float64 `json:"complianceRate"`
}

// Summarize counts results. Objects with no applicable rule are neither compliant
// nor non-compliant and are left out of the compliance rate.
func Summarize[T Result](results []T) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		active := len(r.ActiveViolations())
		whitelisted := len(r.WhitelistedViolations())
		s.ActiveViolations += active
		s.WhitelistedViolations += whitelisted
		if whitelisted > 0 {
			s.WithWhitelisted++
		}
		switch {
		case r.NoRulesApplicable():
			s.NoRulesApplicable++
		case active > 0:
			s.NonCompliant++
		default:
			s.Compliant++
		}
	}
	checked := s.Compliant + s.NonCompliant
	if checked == 0 {
		s.ComplianceRate = 100
	} else {
		s.ComplianceRate = float64(s.Compliant) / float64(checked) * 100
	}
	return s
}

func SummarizeByType[T Result](results []T) map[ObjectType]Summary {
	grouped := map[ObjectType][]T{}
	for _, r := range results {
		grouped[r.Kind()] = append(grouped[r.Kind()], r)
	}
	out := make(map[ObjectType]Summary, len(grouped))
	for t, rs := range grouped {
		out[t] = Summarize(rs)
	}
	return out
}

type StatusFilter string

const (
	StatusAll               StatusFilter = "all"
	StatusCompliant         StatusFilter = "compliant"
	StatusNonCompliant      StatusFilter = "non-compliant"
	StatusWhitelisted       StatusFilter = "whitelisted"
	StatusNonCompliantFirst StatusFilter = "non-compliant-first"
)

func ParseStatusFilter(value string) (StatusFilter, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "_", "-")
	switch StatusFilter(normalized) {
	case "":
		return StatusAll, true
	case StatusAll, StatusCompliant, StatusNonCompliant, StatusWhitelisted, StatusNonCompliantFirst:
		return StatusFilter(normalized), true
	default:
		return "", false
	}
}

// Filter narrows and orders results for display. The zero value keeps everything.
type Filter struct {
	Status     StatusFilter
	Search     string
	ObjectType ObjectType
}

func Apply[T Result](results []T, f Filter) []T {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]T, 0, len(results))
	for _, r := range results {
		if f.ObjectType != "" && r.Kind() != f.ObjectType {
			continue
		}
		if !f.Status.matches(r) {
			continue
		}
		if search != "" && !matchesSearch(r, search) {
			continue
		}
		out = append(out, r)
	}
	if f.Status == StatusNonCompliantFirst {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i].NonCompliant(), out[j].NonCompliant()
			if a != b {
				return a
			}
			return out[i].Name() < out[j].Name()
		})
	}
	return out
}

func (s StatusFilter) matches(r Result) bool {
	switch s {
	case StatusCompliant:
		return !r.NoRulesApplicable() && !r.NonCompliant()
	case StatusNonCompliant:
		return r.NonCompliant()
	case StatusWhitelisted:
		return len(r.WhitelistedViolations()) > 0
	default:
		return true
	}
}

func matchesSearch(r Result, search string) bool {
	for _, term := range r.searchTerms() {
		if strings.Contains(strings.ToLower(term), search) {
			return true
		}
	}
	return false
}
