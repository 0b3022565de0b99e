// Package model contains the domain models shared by every layer.
// It carries no business logic beyond small value helpers.
package model

import "strings"

// Category is one label of the fixed bias taxonomy produced by the classifier.
type Category string

const (
	CategoryNeutral      Category = "neutral"
	CategoryGender       Category = "gender"
	CategoryCaste        Category = "caste"
	CategoryReligion     Category = "religion"
	CategoryPolitical    Category = "political"
	CategoryAge          Category = "age"
	CategoryDisability   Category = "disability"
	CategoryAppearance   Category = "appearance"
	CategorySocialStatus Category = "social-status"
	CategoryReligiosity  Category = "religiosity"
	CategoryAmbiguous    Category = "ambiguous"
)

// Categories lists the taxonomy in a stable order.
var Categories = []Category{
	CategoryNeutral,
	CategoryGender,
	CategoryCaste,
	CategoryReligion,
	CategoryPolitical,
	CategoryAge,
	CategoryDisability,
	CategoryAppearance,
	CategorySocialStatus,
	CategoryReligiosity,
	CategoryAmbiguous,
}

// ParseCategory normalizes a classifier label. Underscores and spaces are
// accepted in place of hyphens; unknown labels report ok=false.
func ParseCategory(label string) (Category, bool) {
	norm := strings.ToLower(strings.TrimSpace(label))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	for _, c := range Categories {
		if string(c) == norm {
			return c, true
		}
	}
	return "", false
}
