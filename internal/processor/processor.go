package processor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Adda-Baaj/broker-scraper/internal/domain"
	"github.com/Adda-Baaj/broker-scraper/internal/logger"
)

// MessageNoArticles is reported when nothing survives filtering.
const MessageNoArticles = "No valid articles found"

// missingDate sorts records without a publish date ahead of every dated record.
var missingDate = domain.Date{Year: 1, Month: 1, Day: 1}

// Blocklist lists brand terms matched against lowercased titles and placeholder texts matched
// exactly against article bodies.
type Blocklist struct {
	Brands []string `mapstructure:"brands" yaml:"brands" json:"brands"`
	Texts  []string `mapstructure:"texts" yaml:"texts" json:"texts"`
}

// DefaultBlocklist returns the built-in brand terms and placeholder texts.
func DefaultBlocklist() Blocklist {
	return Blocklist{
		Brands: []string{"dell", "hp", "acer", "lenovo"},
		Texts: []string{
			"",
			"Get App for Better Experience",
			"Log onto movie.ndtv.com for more celebrity pictures",
			"No description available.",
		},
	}
}

// Processor filters, orders and bounds collected records.
type Processor struct {
	brands []string
	texts  map[string]struct{}
	log    logger.Logger
}

// New builds a Processor for the given blocklist.
func New(bl Blocklist, log logger.Logger) *Processor {
	p := &Processor{
		texts: make(map[string]struct{}, len(bl.Texts)),
		log:   logger.Ensure(log),
	}
	for _, b := range bl.Brands {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			p.brands = append(p.brands, b)
		}
	}
	for _, t := range bl.Texts {
		p.texts[t] = struct{}{}
	}
	return p
}

// Process drops invalid and blocklisted records, sorts the rest by publish day (undated first,
// ties keep collection order) and keeps the most recent maxTotal. A maxTotal <= 0 disables the cap.
func (p *Processor) Process(records []domain.Article, maxTotal int) domain.Result {
	kept := make([]domain.Article, 0, len(records))
	invalid, blocked := 0, 0
	for _, rec := range records {
		if !rec.Valid() {
			invalid++
			continue
		}
		if p.Blocked(rec) {
			blocked++
			continue
		}
		kept = append(kept, rec)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return sortKey(kept[i]).Before(sortKey(kept[j]))
	})

	if maxTotal > 0 && len(kept) > maxTotal {
		kept = kept[len(kept)-maxTotal:]
	}

	p.log.InfoObj("post-processing finished", "process_summary", map[string]any{
		"input":   len(records),
		"invalid": invalid,
		"blocked": blocked,
		"output":  len(kept),
		"max":     maxTotal,
	})

	msg := MessageNoArticles
	if len(kept) > 0 {
		msg = fmt.Sprintf("Successfully scraped %d articles", len(kept))
	}
	return domain.Result{
		Status:        domain.StatusSuccess,
		Message:       msg,
		TotalArticles: len(kept),
		Articles:      kept,
	}
}

// Blocked reports whether the record's title names a blocked brand or its text is a placeholder.
func (p *Processor) Blocked(rec domain.Article) bool {
	if _, ok := p.texts[rec.Text]; ok {
		return true
	}
	title := strings.ToLower(rec.Title)
	for _, b := range p.brands {
		if strings.Contains(title, b) {
			return true
		}
	}
	return false
}

func sortKey(rec domain.Article) domain.Date {
	if rec.PublishDate == nil {
		return missingDate
	}
	return *rec.PublishDate
}
