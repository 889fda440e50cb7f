// Package artifacts manages the on-disk pipeline workspace: raw scraped HTML
// and the cleaned text files the summarizer consumes.
package artifacts

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultHTMLDir = "scraped_html"
	DefaultTextDir = "cleaned_text"
)

var subdomainRe = regexp.MustCompile(`^(www\.|m\.)`)
var nonAlnumRe = regexp.MustCompile(`[^a-zA-Z0-9]`)
var underscoreRunRe = regexp.MustCompile(`_+`)

// Workspace holds the two artifact directories of one pipeline installation.
type Workspace struct {
	HTMLDir string
	TextDir string
}

// NewWorkspace creates the artifact directories if they do not exist.
func NewWorkspace(htmlDir, textDir string) (*Workspace, error) {
	if htmlDir == "" {
		htmlDir = DefaultHTMLDir
	}
	if textDir == "" {
		textDir = DefaultTextDir
	}
	for _, dir := range []string{htmlDir, textDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
		}
	}
	return &Workspace{HTMLDir: htmlDir, TextDir: textDir}, nil
}

// NormalizeSiteName reduces a URL to a filesystem-safe site slug:
// "https://www.coindesk.com/markets" becomes "coindesk_com".
func NormalizeSiteName(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	domain := subdomainRe.ReplaceAllString(strings.ToLower(parsed.Host), "")
	normalized := nonAlnumRe.ReplaceAllString(domain, "_")
	normalized = underscoreRunRe.ReplaceAllString(normalized, "_")
	normalized = strings.Trim(normalized, "_")
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// SaveHTML writes scraped page HTML as <site>_<timestamp>.html and returns
// the file path. Two pages of the same site scraped in the same second get
// a numeric suffix rather than clobbering each other.
func (w *Workspace) SaveHTML(pageURL, html string, scrapedAt time.Time) (string, error) {
	stem := fmt.Sprintf("%s_%s", NormalizeSiteName(pageURL), scrapedAt.Format("20060102_150405"))
	path := filepath.Join(w.HTMLDir, stem+".html")
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(w.HTMLDir, fmt.Sprintf("%s_%d.html", stem, n))
	}
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return "", fmt.Errorf("failed to save HTML artifact: %w", err)
	}
	return path, nil
}

// SaveText writes cleaned article text as clean_<html-stem>.txt, pairing the
// text artifact with the HTML file it was extracted from. The returned path
// is the summary store's idempotency key.
func (w *Workspace) SaveText(htmlPath, text string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(htmlPath), filepath.Ext(htmlPath))
	path := filepath.Join(w.TextDir, "clean_"+stem+".txt")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("failed to save text artifact: %w", err)
	}
	return path, nil
}

// ReadText reads a cleaned text artifact back for summarization.
func (w *Workspace) ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read text artifact: %w", err)
	}
	return string(data), nil
}

// ListTexts returns every cleaned text artifact in the workspace.
func (w *Workspace) ListTexts() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(w.TextDir, "clean_*.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list text artifacts: %w", err)
	}
	return paths, nil
}

// Cleanup removes artifacts older than maxAge from both directories and
// returns how many files were deleted. A zero maxAge removes everything.
func (w *Workspace) Cleanup(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, pattern := range []string{
		filepath.Join(w.HTMLDir, "*.html"),
		filepath.Join(w.TextDir, "clean_*.txt"),
	} {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return removed, fmt.Errorf("failed to list artifacts: %w", err)
		}
		for _, path := range paths {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if maxAge > 0 && info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("failed to remove artifact %s: %w", path, err)
			}
			removed++
		}
	}
	return removed, nil
}
