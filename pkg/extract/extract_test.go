package extract

import (
	"strings"
	"testing"
)

func articleHTML(body string) string {
	return `<html><head>
		<title>Fed Holds Rates Steady</title>
		<meta name="description" content="The Federal Reserve kept rates unchanged.">
		<meta property="og:description" content="The Fed left its benchmark rate unchanged on Wednesday.">
	</head><body>
		<nav>Home | Markets | Subscribe</nav>
		<article>` + body + `</article>
		<footer>Copyright</footer>
	</body></html>`
}

func longParagraphs() string {
	para := "<p>The Federal Reserve held interest rates steady on Wednesday, citing progress on inflation while warning that the labor market remains tight. Investors had broadly expected the decision, and equity markets rallied modestly after the announcement as traders repriced the odds of a cut later this year.</p>"
	return strings.Repeat(para, 4)
}

func TestTextExtractsHeaderAndBody(t *testing.T) {
	e := New()

	text, err := e.Text(articleHTML(longParagraphs()), "https://www.cnbc.com/2025/01/02/fed-holds.html")
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}

	if !strings.HasPrefix(text, "TITLE: Fed Holds Rates Steady") {
		t.Errorf("missing title header, got prefix %q", text[:min(60, len(text))])
	}
	if !strings.Contains(text, "DESCRIPTION: The Fed left its benchmark rate unchanged on Wednesday.") {
		t.Error("og:description should win over meta description")
	}
	if !strings.Contains(text, strings.Repeat("=", 80)) {
		t.Error("missing separator between header and body")
	}
	if !strings.Contains(text, "held interest rates steady") {
		t.Error("body text missing")
	}
	if strings.Contains(text, "Subscribe") {
		t.Error("navigation chrome leaked into extracted text")
	}
}

func TestTextRejectsShortContent(t *testing.T) {
	e := New()

	_, err := e.Text(articleHTML("<p>Too short.</p>"), "https://www.cnbc.com/2025/01/02/stub.html")
	if err == nil {
		t.Error("expected error for paywall-stub content")
	}
}

func TestTextRejectsNonEnglish(t *testing.T) {
	e := New()

	para := "<p>Die Europäische Zentralbank hat die Leitzinsen am Mittwoch unverändert gelassen und dabei auf Fortschritte bei der Inflation verwiesen. Die Anleger hatten diese Entscheidung weitgehend erwartet, und die Aktienmärkte legten nach der Ankündigung leicht zu, da die Händler die Wahrscheinlichkeit einer Zinssenkung im weiteren Jahresverlauf neu bewerteten.</p>"
	_, err := e.Text(articleHTML(strings.Repeat(para, 3)), "https://example.de/2025/01/02/ezb.html")
	if err == nil {
		t.Error("expected non-English article to be rejected")
	}
}

func TestTextWithoutMetadata(t *testing.T) {
	e := New()

	html := "<html><body><div class=\"article-content\">" + longParagraphs() + "</div></body></html>"
	text, err := e.Text(html, "https://smallblog.example.com/2025/01/02/fed")
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if strings.HasPrefix(text, "TITLE:") {
		t.Error("header emitted with no metadata present")
	}
	if strings.Contains(text, strings.Repeat("=", 80)) {
		t.Error("separator emitted with no metadata present")
	}
}

func TestCleanText(t *testing.T) {
	in := "line  one\n\n\n\nline\ttwo   end\n"
	got := cleanText(in)
	want := "line one\n\nline two end"
	if got != want {
		t.Errorf("cleanText = %q, want %q", got, want)
	}
}
