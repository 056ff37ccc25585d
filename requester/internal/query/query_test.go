package query

import (
	"net/url"
	"strings"
	"testing"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name         string
		and, or, not string
		want         string
	}{
		{"quoted phrase kept", `"climate change" policy`, "", "", `"climate change" AND policy`},
		{"or parenthesized", "", "solar wind", "", "(solar OR wind)"},
		{"not prefixed", "", "", "opinion sports", "-opinion -sports"},
		{"all parts", "ai", "chips gpu", "rumor", "ai AND (chips OR gpu) -rumor"},
		{"single or term", "", "nvidia", "", "(nvidia)"},
		{"quoted not", "", "", `"press release"`, `-"press release"`},
		{"empty", "", "", "", ""},
		{"whitespace only", "   ", "\t\n", "  ", ""},
		{"extra spaces", "  a   b ", "", "", "a AND b"},
		{"and empty or set", "", "x", "y", "(x) -y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compile(tt.and, tt.or, tt.not); got != tt.want {
				t.Fatalf("Compile(%q,%q,%q): got %q, want %q", tt.and, tt.or, tt.not, got, tt.want)
			}
		})
	}
}

func TestCompile_NeverEmptyParensOrBareKeywords(t *testing.T) {
	// WHAT: No keyword combination yields "()" or NOT/AND exclusion tokens.
	// WHY: The provider treats "()" as a literal and expects bare "-term".
	inputs := []string{"", " ", "a", `"x y"`, "a b c", `"unterminated`}
	for _, a := range inputs {
		for _, o := range inputs {
			for _, n := range inputs {
				q := Compile(a, o, n)
				if strings.Contains(q, "()") {
					t.Fatalf("empty parens for (%q,%q,%q): %q", a, o, n, q)
				}
				if strings.Contains(q, "NOT") || strings.Contains(q, "AND -") {
					t.Fatalf("bare exclusion keyword for (%q,%q,%q): %q", a, o, n, q)
				}
			}
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize(`"climate change" policy`)
	if len(got) != 2 || got[0] != `"climate change"` || got[1] != "policy" {
		t.Fatalf("tokens: got %q", got)
	}
}

func TestSearchURL_EncodesOnce(t *testing.T) {
	q := Compile(`"climate change"`, "", "")
	u := SearchURL("https://news.google.com/rss/", q, DefaultLocale)

	if !strings.HasPrefix(u, "https://news.google.com/rss/search?q=") {
		t.Fatalf("prefix: %s", u)
	}
	if !strings.HasSuffix(u, "&language=en&country=us") {
		t.Fatalf("locale suffix: %s", u)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatal(err)
	}
	if got := parsed.Query().Get("q"); got != q {
		t.Fatalf("decoded q: got %q, want %q", got, q)
	}
	if strings.Contains(u, "%25") {
		t.Fatalf("double-encoded: %s", u)
	}
}

func TestSearchURL_EmptyQuery(t *testing.T) {
	u := SearchURL("https://news.google.com/rss/", "", Locale{Language: "fr", Country: "ca"})
	if u != "https://news.google.com/rss/search?language=fr&country=ca" {
		t.Fatalf("got %s", u)
	}
}

func TestSignature(t *testing.T) {
	a := Signature("ai  chips", "", "rumor")
	if a != Signature("ai chips", " ", "rumor ") {
		t.Fatal("spacing changed the signature")
	}
	if a == Signature("ai", "chips", "rumor") {
		t.Fatal("moving a term between groups must change the signature")
	}
	if len(a) != 64 {
		t.Fatalf("hex length: got %d", len(a))
	}
}
