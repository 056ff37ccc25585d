// Package query compiles AND/OR/NOT keyword strings into the feed
// provider's search syntax.
package query

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

// tokenRe matches a double-quoted phrase or a run of non-space characters.
var tokenRe = regexp.MustCompile(`"[^"]+"|\S+`)

// Tokenize splits s on whitespace, keeping double-quoted phrases as single
// tokens with their quotes.
func Tokenize(s string) []string {
	return tokenRe.FindAllString(s, -1)
}

// Compile builds the provider query:
//
//	and: a AND b
//	or:  (a OR b)
//	not: -a -b
//
// Non-empty parts are joined by one space. Empty or whitespace-only inputs
// contribute nothing; an empty result means no keyword filter.
func Compile(and, or, not string) string {
	var parts []string

	if terms := Tokenize(and); len(terms) > 0 {
		parts = append(parts, strings.Join(terms, " AND "))
	}
	if terms := Tokenize(or); len(terms) > 0 {
		parts = append(parts, "("+strings.Join(terms, " OR ")+")")
	}
	if terms := Tokenize(not); len(terms) > 0 {
		excl := make([]string, len(terms))
		for i, t := range terms {
			excl[i] = "-" + t
		}
		parts = append(parts, strings.Join(excl, " "))
	}

	return strings.Join(parts, " ")
}

// Locale holds the fixed locale parameters appended to every search.
type Locale struct {
	Language string
	Country  string
}

// DefaultLocale is en/us.
var DefaultLocale = Locale{Language: "en", Country: "us"}

// SearchURL returns <baseURL>search?q=<q>&language=..&country=.. with the
// query percent-encoded exactly once. q is omitted when empty.
func SearchURL(baseURL, q string, loc Locale) string {
	if loc.Language == "" {
		loc.Language = DefaultLocale.Language
	}
	if loc.Country == "" {
		loc.Country = DefaultLocale.Country
	}

	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteString("search?")
	if q != "" {
		b.WriteString("q=")
		b.WriteString(Encode(q))
		b.WriteByte('&')
	}
	b.WriteString("language=")
	b.WriteString(url.QueryEscape(loc.Language))
	b.WriteString("&country=")
	b.WriteString(url.QueryEscape(loc.Country))
	return b.String()
}

// Encode percent-encodes a compiled query for use as a URL query value.
func Encode(q string) string {
	return url.QueryEscape(q)
}

// Signature hashes a keyword triple. Inputs are normalized to their token
// lists first, so spacing differences do not create distinct signatures.
func Signature(and, or, not string) string {
	h := sha256.New()
	for i, part := range []string{and, or, not} {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(strings.Join(Tokenize(part), " ")))
	}
	return hex.EncodeToString(h.Sum(nil))
}
