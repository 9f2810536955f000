package planner

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultLocale is used when no locale is configured or the configured one does not parse.
var DefaultLocale = language.BrazilianPortuguese

// ParseLocale resolves a BCP 47 tag, falling back to DefaultLocale.
func ParseLocale(raw string) language.Tag {
	if raw == "" {
		return DefaultLocale
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return DefaultLocale
	}
	return tag
}

// SortContent orders items by subject name, front name, module sequence and lesson
// sequence. Names compare with the locale's collation rules, ignoring case.
func SortContent(items []ContentItem, locale language.Tag) []ContentItem {
	out := make([]ContentItem, len(items))
	copy(out, items)

	// Collators keep internal buffers, one per call.
	col := collate.New(locale, collate.IgnoreCase)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := col.CompareString(a.SubjectName, b.SubjectName); c != 0 {
			return c < 0
		}
		if c := col.CompareString(a.FrontName, b.FrontName); c != 0 {
			return c < 0
		}
		if a.ModuleSequence != b.ModuleSequence {
			return a.ModuleSequence < b.ModuleSequence
		}
		return a.LessonSequence < b.LessonSequence
	})
	return out
}
