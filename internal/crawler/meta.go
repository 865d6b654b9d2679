package crawler

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

const maxAuthorWords = 5

var publishDateSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[name="article:published_time"]`,
	`meta[property="rnews:datePublished"]`,
	`meta[property="og:published_time"]`,
	`meta[name="OriginalPublicationDate"]`,
	`meta[name="article_date_original"]`,
	`meta[name="publication_date"]`,
	`meta[name="sailthru.date"]`,
	`meta[name="PublishDate"]`,
	`meta[name="publishdate"]`,
	`meta[name="pubdate"]`,
	`meta[itemprop="datePublished"]`,
	`meta[name="date"]`,
}

var authorMetaSelectors = []string{
	`meta[name="author"]`,
	`meta[property="article:author"]`,
	`meta[name="dc.creator"]`,
	`meta[name="byl"]`,
}

var authorNodeSelectors = []string{
	`[rel="author"]`,
	`[itemprop="author"] [itemprop="name"]`,
	`[itemprop="author"]`,
	`.byline`,
	`.author-name`,
	`.author`,
}

var tagLinkSelectors = []string{
	`a[rel="tag"]`,
	`a[href*="/tag/"]`,
	`a[href*="/tags/"]`,
	`a[href*="/topic/"]`,
	`a[href*="?keyword="]`,
}

var (
	urlDatePattern   = regexp.MustCompile(`(?:^|/)((?:19|20)\d{2})[/-](0?[1-9]|1[0-2])[/-](0?[1-9]|[12]\d|3[01])(?:/|$|-)`)
	bylinePrefix     = regexp.MustCompile(`(?i)^\s*(?:written\s+)?by[:\s]+`)
	authorSeparators = regexp.MustCompile(`(?i)\s*(?:,|&|\||;|\n|\band\b)\s*`)
)

// extractPublishDate checks publication meta tags, itemprop nodes and finally a date embedded in the URL.
func extractPublishDate(doc *goquery.Document, pageURL *url.URL) (time.Time, bool) {
	for _, sel := range publishDateSelectors {
		if t, ok := parseDate(metaContent(doc, sel)); ok {
			return t, true
		}
	}

	var found time.Time
	doc.Find(`time[itemprop="datePublished"], [itemprop="datePublished"], time[pubdate]`).EachWithBreak(func(_ int, node *goquery.Selection) bool {
		for _, name := range []string{"datetime", "content"} {
			if val, ok := node.Attr(name); ok {
				if t, ok := parseDate(val); ok {
					found = t
					return false
				}
			}
		}
		if t, ok := parseDate(node.Text()); ok {
			found = t
			return false
		}
		return true
	})
	if !found.IsZero() {
		return found, true
	}

	if pageURL != nil {
		if m := urlDatePattern.FindStringSubmatch(pageURL.Path); m != nil {
			if t, err := time.Parse("2006-1-2", m[1]+"-"+m[2]+"-"+m[3]); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// extractAuthors collects names from author meta tags, author nodes and the readability byline.
func extractAuthors(doc *goquery.Document, byline string) []string {
	var candidates []string

	for _, sel := range authorMetaSelectors {
		doc.Find(sel).Each(func(_ int, node *goquery.Selection) {
			val := strings.TrimSpace(node.AttrOr("content", ""))
			if val == "" || strings.HasPrefix(val, "http://") || strings.HasPrefix(val, "https://") {
				return
			}
			candidates = append(candidates, splitAuthors(val)...)
		})
	}

	for _, sel := range authorNodeSelectors {
		doc.Find(sel).Each(func(_ int, node *goquery.Selection) {
			if goquery.NodeName(node) == "meta" {
				candidates = append(candidates, splitAuthors(node.AttrOr("content", ""))...)
				return
			}
			candidates = append(candidates, splitAuthors(node.Text())...)
		})
	}

	candidates = append(candidates, splitAuthors(byline)...)
	return uniqueFold(candidates)
}

// splitAuthors strips a "By" prefix and splits a byline into plausible names.
func splitAuthors(raw string) []string {
	raw = strings.TrimSpace(bylinePrefix.ReplaceAllString(raw, ""))
	if raw == "" {
		return nil
	}

	var names []string
	for _, part := range authorSeparators.Split(raw, -1) {
		name := strings.Join(strings.Fields(bylinePrefix.ReplaceAllString(part, "")), " ")
		if !plausibleName(name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

func plausibleName(name string) bool {
	if name == "" {
		return false
	}
	if n := len(strings.Fields(name)); n > maxAuthorWords {
		return false
	}
	for _, r := range name {
		if unicode.IsDigit(r) || r == '@' || r == '/' {
			return false
		}
	}
	return true
}

// extractTags gathers article:tag and news_keywords metadata plus tag links, first-seen order.
func extractTags(doc *goquery.Document) []string {
	var tags []string

	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, node *goquery.Selection) {
		tags = append(tags, strings.TrimSpace(node.AttrOr("content", "")))
	})
	doc.Find(`meta[name="news_keywords"]`).Each(func(_ int, node *goquery.Selection) {
		tags = append(tags, strings.Split(node.AttrOr("content", ""), ",")...)
	})
	for _, sel := range tagLinkSelectors {
		doc.Find(sel).Each(func(_ int, node *goquery.Selection) {
			tags = append(tags, strings.Join(strings.Fields(node.Text()), " "))
		})
	}

	return uniqueFold(tags)
}

// uniqueFold trims values and drops empties and case-insensitive duplicates, keeping the first spelling.
func uniqueFold(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
