// Package feed parses aggregator RSS payloads into normalized articles.
//
// Only RSS is accepted: the payload type is detected with gofeed and
// anything else (Atom, JSON, garbage) is a parse error. A channel with no
// <item> elements is a valid, empty result.
package feed

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/rss"
)

// ErrNotRSS is returned when the payload is not an RSS document.
var ErrNotRSS = errors.New("feed: payload is not RSS")

// Article is one normalized feed item.
type Article struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Publication string     `json:"publication"`
	Link        string     `json:"link"`
	PubDate     string     `json:"pub_date"`
	Published   *time.Time `json:"published,omitempty"`
	Content     string     `json:"content,omitempty"`
}

// Parse decodes an RSS payload.
func Parse(data []byte) ([]Article, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("feed: empty payload")
	}
	if t := gofeed.DetectFeedType(bytes.NewReader(data)); t != gofeed.FeedTypeRSS {
		return nil, ErrNotRSS
	}

	fp := &rss.Parser{}
	f, err := fp.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}

	articles := make([]Article, 0, len(f.Items))
	for _, it := range f.Items {
		if it == nil {
			continue
		}
		articles = append(articles, normalize(it))
	}
	return articles, nil
}

func normalize(it *rss.Item) Article {
	a := Article{
		Title:       strings.TrimSpace(it.Title),
		Description: AnchorText(it.Description),
		Link:        strings.TrimSpace(it.Link),
		PubDate:     strings.TrimSpace(it.PubDate),
		Published:   it.PubDateParsed,
		Content:     it.Content,
	}
	if a.Link == "" && it.GUID != nil && it.GUID.IsPermalink != "false" && strings.HasPrefix(it.GUID.Value, "http") {
		a.Link = strings.TrimSpace(it.GUID.Value)
	}
	if it.Source != nil {
		a.Publication = strings.TrimSpace(it.Source.Title)
	}
	return a
}

// AnchorText returns the inner text of the first <a> element in an HTML
// fragment. Without an anchor, or with an empty one, s is returned as is.
func AnchorText(s string) string {
	if !strings.Contains(s, "<a") && !strings.Contains(s, "<A") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	a := doc.Find("a").First()
	if a.Length() == 0 {
		return s
	}
	text := strings.TrimSpace(a.Text())
	if text == "" {
		return s
	}
	return text
}
