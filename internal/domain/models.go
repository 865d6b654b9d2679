package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Domain contains core models shared by discovery, extraction and post-processing.

// DateLayout is the calendar-day format used on the wire.
const DateLayout = "2006-01-02"

// Date is a calendar day without time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Before reports whether d falls strictly before o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Article is one extracted news article. It is valid only when Title and Text are both non-empty.
type Article struct {
	Link        string   `json:"link"`
	Title       string   `json:"title"`
	Text        string   `json:"text"`
	Author      []string `json:"author"`
	PublishDate *Date    `json:"publish_date,omitempty"`
	Keywords    []string `json:"keywords"`
	Tags        []string `json:"tags"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
}

// Valid reports whether the article carries both a title and body text.
func (a Article) Valid() bool {
	return a.Title != "" && a.Text != ""
}

// ArticleRef is a discovered link believed to point at a single article, prior to fetching it.
// The optional hints come from feeds or news sitemaps and only fill gaps left by the page itself.
type ArticleRef struct {
	URL         string
	Site        string
	Title       string
	ImageURL    string
	Keywords    []string
	PublishedAt time.Time
}

// Result is the outcome of a full pipeline run.
type Result struct {
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	TotalArticles int       `json:"total_articles"`
	Articles      []Article `json:"articles"`
}

// StatusSuccess is the only status the pipeline reports; failures are absorbed per item.
const StatusSuccess = "success"
