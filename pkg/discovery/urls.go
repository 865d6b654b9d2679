package discovery

import (
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var (
	datePathPattern = regexp.MustCompile(`/(19|20)\d{2}[/-](0?[1-9]|1[0-2])([/-]|$)`)
	longIDPattern   = regexp.MustCompile(`\d{5,}`)
	categoryPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,39}$`)

	skipExtensions = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".webp": {}, ".ico": {},
		".pdf": {}, ".mp3": {}, ".mp4": {}, ".zip": {}, ".xml": {}, ".rss": {}, ".css": {}, ".js": {},
		".json": {},
	}

	skipSegments = map[string]struct{}{
		"about": {}, "about-us": {}, "account": {}, "advertise": {}, "author": {}, "authors": {},
		"careers": {}, "contact": {}, "contact-us": {}, "cookie-policy": {}, "faq": {}, "feedback": {},
		"gallery": {}, "help": {}, "live-tv": {}, "login": {}, "logout": {}, "newsletter": {},
		"newsletters": {}, "photos": {}, "podcast": {}, "podcasts": {}, "privacy": {},
		"privacy-policy": {}, "register": {}, "search": {}, "signin": {}, "signup": {}, "sitemap": {},
		"subscribe": {}, "subscription": {}, "tag": {}, "tags": {}, "terms": {}, "terms-of-use": {},
		"video": {}, "videos": {}, "web-stories": {},
	}

	pageSuffixes = []string{".html", ".htm", ".cms", ".ece", ".php", ".aspx"}
)

// registrableDomain returns the eTLD+1 of host, or host itself when it has none (IPs, localhost).
func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil {
		return host
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// sameSite reports whether u belongs to the registrable domain.
func sameSite(u *url.URL, domainName string) bool {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return registrableDomain(u.Hostname()) == domainName
}

// normalizeLink resolves raw against base and strips fragments and tracking parameters.
func normalizeLink(raw string, base *url.URL) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(strings.ToLower(raw), "javascript:") ||
		strings.HasPrefix(strings.ToLower(raw), "mailto:") {
		return nil, false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}

	u.Fragment = ""
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if strings.HasPrefix(strings.ToLower(k), "utm_") {
				q.Del(k)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, true
}

func pathSegments(p string) []string {
	var segs []string
	for _, s := range strings.Split(strings.ToLower(p), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func hasSkippedSegment(segs []string) bool {
	for _, s := range segs {
		if _, skip := skipSegments[s]; skip {
			return true
		}
	}
	return false
}

// looksLikeArticle guesses whether u points at a single story: a date in the path, a long slug,
// or a numeric story id under a section.
func looksLikeArticle(u *url.URL) bool {
	if u == nil {
		return false
	}
	p := strings.ToLower(u.Path)
	ext := path.Ext(p)
	if _, skip := skipExtensions[ext]; skip {
		return false
	}
	segs := pathSegments(p)
	if len(segs) == 0 || hasSkippedSegment(segs) {
		return false
	}
	if datePathPattern.MatchString(p) {
		return true
	}

	last := segs[len(segs)-1]
	for _, suffix := range pageSuffixes {
		last = strings.TrimSuffix(last, suffix)
	}
	words := strings.FieldsFunc(last, func(r rune) bool { return r == '-' || r == '_' })
	if len(words) >= 4 {
		return true
	}
	return len(segs) >= 2 && longIDPattern.MatchString(last)
}

// looksLikeCategory matches short single-segment section pages such as /markets or /economy.
func looksLikeCategory(u *url.URL) bool {
	if u == nil || u.RawQuery != "" {
		return false
	}
	segs := pathSegments(u.Path)
	if len(segs) != 1 || hasSkippedSegment(segs) {
		return false
	}
	return categoryPattern.MatchString(segs[0]) && !looksLikeArticle(u)
}
