package classify

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category is the wire form of a waste category.
type Category string

const (
	Recyclable    Category = "recyclable waste"
	NonRecyclable Category = "non-recyclable waste"
)

// ParseCategory coerces free text to a Category. Anything other than the two
// known names, compared case-insensitively, becomes NonRecyclable.
func ParseCategory(value string) Category {
	switch Category(cases.Fold().String(strings.Join(strings.Fields(value), " "))) {
	case Recyclable:
		return Recyclable
	default:
		return NonRecyclable
	}
}

func (c Category) String() string { return string(c) }

// NormalizeItem lowercases and collapses whitespace in an item name.
func NormalizeItem(name string) string {
	return cases.Lower(language.Und).String(strings.Join(strings.Fields(name), " "))
}

// matchKey is the comparison form used to pair detector labels with classifier
// items: case-folded, with runs of spaces and underscores joined by "_".
func matchKey(name string) string {
	folded := cases.Fold().String(name)
	return strings.Join(strings.FieldsFunc(folded, func(r rune) bool {
		return r == '_' || r == ' ' || r == '\t'
	}), "_")
}
