package deed

import "strings"

// Category is the kind of deed a record attests. Known values are enumerated
// below; any other non-empty string is accepted and preserved verbatim.
type Category string

const (
	CategoryEcologicalSustainability Category = "ecological_sustainability"
	CategoryHomelessnessRelief       Category = "homelessness_relief"
	CategoryMathScienceEducation     Category = "math_science_education"
	CategoryResourceSharing          Category = "resource_sharing"
	CategorySimulationReanalysis     Category = "simulation_reanalysis"
	CategorySignedTrial              Category = "signed_trial"
	CategoryRecovery                 Category = "recovery"
)

var knownCategories = map[Category]struct{}{
	CategoryEcologicalSustainability: {},
	CategoryHomelessnessRelief:       {},
	CategoryMathScienceEducation:     {},
	CategoryResourceSharing:          {},
	CategorySimulationReanalysis:     {},
	CategorySignedTrial:              {},
	CategoryRecovery:                 {},
}

// ParseCategory maps s onto a known category when it matches one
// case-insensitively, otherwise it keeps s as an open category.
func ParseCategory(s string) Category {
	trimmed := strings.TrimSpace(s)
	lower := Category(strings.ToLower(trimmed))
	if _, ok := knownCategories[lower]; ok {
		return lower
	}
	return Category(trimmed)
}

// Known reports whether c is one of the enumerated categories.
func (c Category) Known() bool {
	_, ok := knownCategories[c]
	return ok
}

// IsGoodDeed reports whether c is one of the categories eligible for a
// positive advisory recommendation.
func (c Category) IsGoodDeed() bool {
	switch c {
	case CategoryEcologicalSustainability, CategoryHomelessnessRelief, CategoryMathScienceEducation:
		return true
	}
	return false
}

func (c Category) String() string { return string(c) }
