package insight

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// legalSuffixes lists common legal entity suffixes stripped during
// competitor-name canonicalization.
var legalSuffixes = []string{
	" llc", " l.l.c.",
	" inc", " inc.", " incorporated",
	" corp", " corp.", " corporation",
	" ltd", " ltd.", " limited",
	" co", " co.",
	" plc",
	" gmbh",
	" ag",
	" sa", " s.a.",
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

var titleCaser = cases.Title(language.English, cases.NoLower)

// CanonicalName standardizes a competitor name for dedupe: lowercased,
// legal suffix stripped, punctuation removed, spaces collapsed.
func CanonicalName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "and",
		"-", " ",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// DisplayName renders a name for presentation, title-casing fully lowercased
// input and leaving mixed-case brands (iPhone, eBay) alone.
func DisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == strings.ToLower(name) {
		return titleCaser.String(name)
	}
	return name
}

// DedupeNames canonicalizes and dedupes a competitor list, preserving first
// occurrence order and presentation form.
func DedupeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		canon := CanonicalName(n)
		if canon == "" || seen[canon] {
			continue
		}
		seen[canon] = true
		out = append(out, DisplayName(n))
	}
	return out
}
