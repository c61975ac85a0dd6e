// Package schema holds the cloud category→feature schema that drives
// serialization: which state keys are valid per device category, their wire
// data types, and whether they are required.
//
// The schema is fetched once from the cloud REST API, cached to a local
// file, and from then on loaded from that file. It is immutable after
// construction and injected into the components that need it, so tests run
// deterministically without network access.
package schema

import (
	"sort"
)

// Wire data types used by the cloud feature schema.
const (
	TypeBool    = "BOOL"
	TypeInteger = "INTEGER"
	TypeEnum    = "ENUM"
	TypeColour  = "COLOUR"
)

// Feature is one named, typed capability of a category.
type Feature struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Required bool   `json:"required"`
}

// Schema maps device category to its feature list. Immutable once built.
type Schema struct {
	categories map[string][]Feature
}

// New builds a Schema from a category→features map. The map is copied, so
// later mutation of the argument does not affect the schema.
func New(categories map[string][]Feature) *Schema {
	m := make(map[string][]Feature, len(categories))
	for cat, features := range categories {
		fs := make([]Feature, len(features))
		copy(fs, features)
		m[cat] = fs
	}
	return &Schema{categories: m}
}

// Features returns the feature list for a category, or nil if the category
// is unknown. Callers must not modify the returned slice.
func (s *Schema) Features(category string) []Feature {
	return s.categories[category]
}

// Has reports whether the category exists in the schema.
func (s *Schema) Has(category string) bool {
	_, ok := s.categories[category]
	return ok
}

// Categories returns all category names in sorted order.
func (s *Schema) Categories() []string {
	out := make([]string, 0, len(s.categories))
	for cat := range s.categories {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of categories.
func (s *Schema) Len() int {
	return len(s.categories)
}
