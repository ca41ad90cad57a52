// Package normalize turns raw artist references into stable lookup keys.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// leadingArticles are stripped from the front of a query before matching.
var leadingArticles = []string{
	"the ",
	"a ",
	"an ",
}

// qualifierSuffixes are generic trailing qualifiers that distinct acts
// often share. They are stripped only into the secondary variant, never
// the primary key, to avoid over-merging (e.g. "X band" vs "X group").
var qualifierSuffixes = []string{
	" band",
	" group",
	" orchestra",
	" ensemble",
	" quartet",
	" trio",
	" duo",
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// foldTransform decomposes to NFD, drops combining marks, and recomposes,
// so "Björk" and "Bjork" normalize to the same key.
var foldTransform = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Query holds the two normalized variants of a raw reference.
type Query struct {
	// Key is the primary normalized form: lowercased, diacritics folded,
	// leading article stripped, whitespace collapsed.
	Key string
	// Stripped additionally removes trailing qualifier suffixes. It is
	// tried only as a fallback during lookup.
	Stripped string
}

// New normalizes a raw artist reference into its lookup variants.
func New(raw string) Query {
	key := Key(raw)

	stripped := key
	for _, suffix := range qualifierSuffixes {
		if strings.HasSuffix(stripped, suffix) {
			stripped = strings.TrimSuffix(stripped, suffix)
			stripped = strings.TrimSpace(stripped)
			break
		}
	}

	return Query{Key: key, Stripped: stripped}
}

// Key produces the primary normalized form of a name. It is also used to
// deduplicate aliases: two aliases from the same source with equal keys
// are the same alias.
func Key(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	s = strings.ToLower(s)

	if folded, _, err := transform.String(foldTransform, s); err == nil {
		s = folded
	}

	for _, article := range leadingArticles {
		if strings.HasPrefix(s, article) {
			s = strings.TrimPrefix(s, article)
			break
		}
	}

	s = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "and",
		"-", " ",
	).Replace(s)

	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Variants returns the distinct lookup keys for a query, primary first.
func (q Query) Variants() []string {
	if q.Stripped != "" && q.Stripped != q.Key {
		return []string{q.Key, q.Stripped}
	}
	return []string{q.Key}
}
