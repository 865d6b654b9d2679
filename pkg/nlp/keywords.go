package nlp

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"

	"github.com/Adda-Baaj/broker-scraper/pkg/resources"
)

// MaxKeywords caps the keywords derived from a single text.
const MaxKeywords = 10

// ErrResourceUnavailable is returned when the tokenizer or stopword list could not be loaded.
var ErrResourceUnavailable = errors.New("language resource unavailable")

// languageNames maps ISO 639-1 codes to the file names used by the resource packages.
var languageNames = map[string]string{
	"ar": "arabic",
	"da": "danish",
	"de": "german",
	"el": "greek",
	"en": "english",
	"es": "spanish",
	"fi": "finnish",
	"fr": "french",
	"hu": "hungarian",
	"id": "indonesian",
	"it": "italian",
	"nl": "dutch",
	"no": "norwegian",
	"pt": "portuguese",
	"ro": "romanian",
	"ru": "russian",
	"sv": "swedish",
	"tr": "turkish",
}

// LanguageName resolves an ISO code (or a full name) to a resource file name.
func LanguageName(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if name, ok := languageNames[lang]; ok {
		return name
	}
	if lang == "" {
		return "english"
	}
	return lang
}

// KeywordExtractor derives keywords from article text using on-disk stopword and abbreviation tables.
type KeywordExtractor struct {
	stopwords map[string]struct{}
	abbrevs   map[string]struct{}
	err       error
}

// Load reads the stopword list and tokenizer abbreviations for language from paths. A load failure
// is kept and reported by every Keywords call, so a missing resource fails articles one by one.
func Load(paths []string, language string) *KeywordExtractor {
	name := LanguageName(language)
	e := &KeywordExtractor{}

	stop, err := readResourceList(paths, resources.Stopwords, name)
	if err != nil {
		e.err = err
		return e
	}
	abbrevs, err := readResourceList(paths, resources.Tokenizer, filepath.Join(name, "abbrev_types.txt"))
	if err != nil {
		e.err = err
		return e
	}
	e.stopwords = stop
	e.abbrevs = abbrevs
	return e
}

// NewKeywordExtractor builds an extractor from in-memory tables.
func NewKeywordExtractor(stopwords, abbrevs []string) *KeywordExtractor {
	return &KeywordExtractor{stopwords: toSet(stopwords), abbrevs: toSet(abbrevs)}
}

// Err reports the load failure, if any.
func (e *KeywordExtractor) Err() error {
	return e.err
}

func readResourceList(paths []string, id, file string) (map[string]struct{}, error) {
	dir, ok := resources.Find(paths, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s not found in %v", ErrResourceUnavailable, id, paths)
	}
	f, err := os.Open(filepath.Join(dir, file))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	defer f.Close()

	set := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if w := strings.ToLower(strings.TrimSpace(sc.Text())); w != "" {
			set[w] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrResourceUnavailable, id, err)
	}
	return set, nil
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// Tokenize splits text with the prose tokenizer and normalizes each token to lowercase. Known
// abbreviations keep their inner periods ("u.s"); every other token loses all non-word characters.
func (e *KeywordExtractor) Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil
	}

	toks := doc.Tokens()
	out := make([]string, 0, len(toks))
	for _, tok := range toks {
		if w := e.normalize(tok.Text); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func (e *KeywordExtractor) normalize(token string) string {
	token = strings.ToLower(token)
	trimmed := strings.TrimFunc(token, func(r rune) bool { return !isWordRune(r) && r != '.' })
	if abbr := strings.Trim(trimmed, "."); abbr != "" && strings.Contains(trimmed, ".") {
		if _, ok := e.abbrevs[abbr]; ok {
			return abbr
		}
	}
	return strings.Map(func(r rune) rune {
		if isWordRune(r) {
			return r
		}
		return -1
	}, token)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// Keywords returns up to MaxKeywords non-stopword tokens ordered by frequency, ties broken by
// reverse lexical order.
func (e *KeywordExtractor) Keywords(text string) ([]string, error) {
	if e.err != nil {
		return nil, e.err
	}

	freq := make(map[string]int)
	for _, tok := range e.Tokenize(text) {
		if _, stop := e.stopwords[tok]; stop {
			continue
		}
		freq[tok]++
	}
	if len(freq) == 0 {
		return nil, nil
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] > words[j]
	})
	if len(words) > MaxKeywords {
		words = words[:MaxKeywords]
	}
	return words, nil
}

// ArticleKeywords merges title keywords and body keywords, title first, without duplicates.
func (e *KeywordExtractor) ArticleKeywords(title, text string) ([]string, error) {
	titleKW, err := e.Keywords(title)
	if err != nil {
		return nil, err
	}
	textKW, err := e.Keywords(text)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(titleKW)+len(textKW))
	seen := make(map[string]struct{}, len(titleKW)+len(textKW))
	for _, kw := range append(titleKW, textKW...) {
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out, nil
}
