// Package extract turns scraped article HTML into clean text ready for
// summarization. Readability extraction is tried first, with a selector
// based fallback for pages it cannot make sense of.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/pemistahl/lingua-go"
)

// minContentLength is the shortest body text worth keeping. Anything below
// this is a paywall stub or a bot-wall page, not an article.
const minContentLength = 200

var whitespaceRe = regexp.MustCompile(`[ \t]+`)
var blankLinesRe = regexp.MustCompile(`\n\s*\n+`)

// contentSelectors are tried in priority order when readability fails.
var contentSelectors = []string{
	"article",
	"[role=main]",
	".article-content",
	".post-content",
	".entry-content",
	".content-body",
	".story-body",
	".article-body",
	".main-content",
	"#main-content",
	".content",
	"#content",
}

// unwantedSelectors strip navigation, ads, and other non-article chrome
// before the fallback pulls text.
var unwantedSelectors = []string{
	"script", "style", "nav", "header", "footer", "aside", "form",
	"button", "input", "select", "textarea", "iframe", "noscript",
	"[class*=sidebar]", "[class*=banner]", "[class*=cookie]",
	"[class*=subscribe]", "[class*=newsletter]", "[class*=social]",
	"[class*=share]", "[class*=comment]", "[class*=related]",
	"[class*=recommended]", "[id*=sidebar]", "[id*=banner]",
}

// Metadata is the article front matter prepended to the cleaned text.
type Metadata struct {
	Title       string
	Description string
	Published   string
}

// Extractor converts article HTML into cleaned plain text. The language
// detector gates out non-English articles, which the summarizer's prompt
// cannot handle.
type Extractor struct {
	detector lingua.LanguageDetector
}

func New() *Extractor {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(
			lingua.English, lingua.Spanish, lingua.French, lingua.German,
			lingua.Portuguese, lingua.Chinese, lingua.Japanese, lingua.Russian,
		).
		Build()
	return &Extractor{detector: detector}
}

// Text extracts the cleaned article text for pageURL's HTML. The result
// carries a TITLE/DESCRIPTION/PUBLISHED header when metadata is present,
// separated from the body by a rule of '=' characters.
func (e *Extractor) Text(html, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	meta := extractMetadata(doc)

	body := e.readabilityText(html, pageURL)
	if len(body) < minContentLength {
		body = fallbackText(doc)
	}
	body = cleanText(body)
	if len(body) < minContentLength {
		return "", fmt.Errorf("extracted text too short (%d chars)", len(body))
	}

	if lang, ok := e.detector.DetectLanguageOf(body); ok && lang != lingua.English {
		return "", fmt.Errorf("article language %s not supported", lang)
	}

	var parts []string
	if meta.Title != "" {
		parts = append(parts, "TITLE: "+meta.Title)
	}
	if meta.Description != "" {
		parts = append(parts, "DESCRIPTION: "+meta.Description)
	}
	if meta.Published != "" {
		parts = append(parts, "PUBLISHED: "+meta.Published)
	}
	if len(parts) > 0 {
		parts = append(parts, strings.Repeat("=", 80))
	}
	parts = append(parts, body)

	return strings.Join(parts, "\n"), nil
}

func (e *Extractor) readabilityText(html, pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return ""
	}
	return article.TextContent
}

// fallbackText walks the priority selectors after stripping page chrome,
// settling for the whole body when nothing better matches.
func fallbackText(doc *goquery.Document) string {
	for _, sel := range unwantedSelectors {
		doc.Find(sel).Remove()
	}

	for _, sel := range contentSelectors {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			return node.Text()
		}
	}
	return doc.Find("body").Text()
}

func extractMetadata(doc *goquery.Document) Metadata {
	var meta Metadata

	meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if ogTitle, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(ogTitle) != "" {
		meta.Title = strings.TrimSpace(ogTitle)
	}

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		meta.Description = strings.TrimSpace(desc)
	}
	if ogDesc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok && strings.TrimSpace(ogDesc) != "" {
		meta.Description = strings.TrimSpace(ogDesc)
	}

	for _, sel := range []string{"time[datetime]", ".published-date", ".article-date", ".post-date"} {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if dt, ok := node.Attr("datetime"); ok && dt != "" {
				meta.Published = strings.TrimSpace(dt)
			} else {
				meta.Published = strings.TrimSpace(node.Text())
			}
			break
		}
	}

	return meta
}

func cleanText(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
