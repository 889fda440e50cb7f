// Package classify decides whether a candidate link denotes an individual
// news article and reduces it to its canonical form.
package classify

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// denySubstrings filters navigation, social, subscription, legal, and
// media-only links before any pattern matching. A link containing any of
// these is rejected regardless of domain.
var denySubstrings = []string{
	"/video/", "/videos/", "/podcast", "/audio/", "/gallery/", "/slideshow",
	"/live/", "/livestream",
	"/tag/", "/tags/", "/topic/", "/topics/", "/category/", "/author/",
	"/page/", "/archive", "/index.",
	"/sitemap", "/search", "/login", "/signin", "/sign-in", "/signup",
	"/sign-up", "/register", "/subscribe", "/subscription", "/newsletter",
	"/account", "/profile",
	"/about", "/contact", "/careers", "/advertise", "/press-release",
	"/privacy", "/terms", "/cookie", "/disclaimer", "/legal",
	"facebook.com", "twitter.com", "x.com/", "linkedin.com", "instagram.com",
	"youtube.com", "tiktok.com", "reddit.com", "pinterest.com", "whatsapp.com",
	"t.me/", "mailto:", "javascript:", "tel:",
}

// domainPatterns maps a known host (www-stripped) to the path regexes that
// match that site's article URL conventions. A known domain is evaluated
// only against its own patterns; the generic fallback never applies to it.
var domainPatterns = map[string][]*regexp.Regexp{
	"coindesk.com": {
		regexp.MustCompile(`^/(markets|business|policy|tech|web3|consensus-magazine)/\d{4}/\d{2}/\d{2}/`),
		regexp.MustCompile(`^/price/`),
	},
	"marketwatch.com": {
		regexp.MustCompile(`^/story/`),
		regexp.MustCompile(`^/articles/`),
	},
	"finance.yahoo.com": {
		regexp.MustCompile(`^/news/[^/]+\.html$`),
		regexp.MustCompile(`^/m/[0-9a-f-]+/`),
	},
	"cnbc.com": {
		regexp.MustCompile(`^/\d{4}/\d{2}/\d{2}/`),
		regexp.MustCompile(`^/video-and-tv/`),
	},
	"reuters.com": {
		regexp.MustCompile(`^/(business|markets|world|technology|breakingviews|legal)/.+-\d{4}-\d{2}-\d{2}/?$`),
	},
	"bloomberg.com": {
		regexp.MustCompile(`^/news/articles/\d{4}-\d{2}-\d{2}/`),
		regexp.MustCompile(`^/opinion/articles/\d{4}-\d{2}-\d{2}/`),
	},
	"seekingalpha.com": {
		regexp.MustCompile(`^/article/\d+-`),
		regexp.MustCompile(`^/news/\d+-`),
	},
	"fool.com": {
		regexp.MustCompile(`^/investing/\d{4}/\d{2}/\d{2}/`),
	},
}

// genericPatterns are the fallback article indicators for domains without
// an entry in domainPatterns.
var genericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/\d{4}/\d{2}/\d{2}/`),
	regexp.MustCompile(`/article/`),
	regexp.MustCompile(`/articles/`),
	regexp.MustCompile(`/story/`),
	regexp.MustCompile(`/news/[^/]+`),
	regexp.MustCompile(`/post/`),
	regexp.MustCompile(`/blog/[^/]+`),
}

// Classify resolves a candidate link against its origin page and returns
// the canonical article URL (scheme + host + path, query and fragment
// dropped). ok is false for anything that is not an individual article.
func Classify(href, pageURL string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	lower := strings.ToLower(href)
	for _, deny := range denySubstrings {
		if strings.Contains(lower, deny) {
			return "", false
		}
	}

	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" || abs.Path == "" || abs.Path == "/" {
		return "", false
	}

	canonical := abs.Scheme + "://" + abs.Host + abs.Path

	host := strings.TrimPrefix(strings.ToLower(abs.Host), "www.")
	if patterns, known := knownDomain(host); known {
		for _, p := range patterns {
			if p.MatchString(abs.Path) {
				return canonical, true
			}
		}
		// Known domains never fall through to the generic indicators.
		return "", false
	}

	for _, p := range genericPatterns {
		if p.MatchString(abs.Path) {
			return canonical, true
		}
	}
	return "", false
}

// knownDomain matches host against the pattern catalog, accepting
// subdomains of a registered entry (news.reuters.com -> reuters.com) but
// preferring an exact entry when one exists.
func knownDomain(host string) ([]*regexp.Regexp, bool) {
	if patterns, ok := domainPatterns[host]; ok {
		return patterns, true
	}
	for domain, patterns := range domainPatterns {
		if strings.HasSuffix(host, "."+domain) {
			return patterns, true
		}
	}
	return nil, false
}

// Domain extracts the host of a canonical URL, lowercased with any "www."
// prefix removed.
func Domain(canonical string) string {
	parsed, err := url.Parse(canonical)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
}

// ExtractArticleLinks walks every anchor on a fetched page, classifies each
// href, and returns the accepted canonical URLs deduplicated in discovery
// order. A page never contributes the same canonical URL twice.
func ExtractArticleLinks(doc *goquery.Document, pageURL string) []string {
	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		canonical, ok := Classify(href, pageURL)
		if !ok {
			return
		}
		if _, dup := seen[canonical]; dup {
			return
		}
		seen[canonical] = struct{}{}
		links = append(links, canonical)
	})

	return links
}
