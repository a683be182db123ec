// Package webscrape also provides PageScraper, the scrape.Scraper
// implementation wired at the engine edge.
//
// Grounded on internal/tools/fetch.go's extractText (golang.org/x/net/html
// walk skipping script/style nodes) for HTML pages, and
// internal/tools/pdf.go, internal/tools/docx.go, internal/tools/xlsx.go
// for the multi-format dispatch, adapted from the tool-call Execute
// signature (single path, returns a formatted string) to
// scrape.Scraper.ScrapeMany (batch of URLs, returns noise-stripped Page
// values).
package webscrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"

	"deepresearch/internal/scrape"
)

// PageScraper implements scrape.Scraper for HTTP(S) URLs, dispatching to
// a format-specific extractor based on the URL's file extension.
type PageScraper struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewPageScraper constructs a PageScraper with a 30s per-request timeout,
// matching spec.md §5 ("HTTP-level timeouts belong to the scraper").
func NewPageScraper() *PageScraper {
	return &PageScraper{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxBytes:   20 << 20,
	}
}

// ScrapeMany implements scrape.Scraper. URLs that fail to fetch or parse
// are simply absent from the result.
func (s *PageScraper) ScrapeMany(ctx context.Context, urls []string) ([]scrape.Page, error) {
	pages := make([]scrape.Page, 0, len(urls))
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		page, err := s.scrapeOne(ctx, u)
		if err != nil {
			continue
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (s *PageScraper) scrapeOne(ctx context.Context, rawURL string) (scrape.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return scrape.Page{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; deepresearch/1.0)")
	req.Header.Set("Accept", "*/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return scrape.Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return scrape.Page{}, fmt.Errorf("webscrape: status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return scrape.Page{}, err
	}

	switch strings.ToLower(filepath.Ext(rawURL)) {
	case ".pdf":
		text, err := extractPDF(body)
		if err != nil {
			return scrape.Page{}, err
		}
		return scrape.Page{URL: rawURL, Title: filepath.Base(rawURL), Text: truncate(text, 100000)}, nil
	case ".docx":
		text, err := extractDOCX(body)
		if err != nil {
			return scrape.Page{}, err
		}
		return scrape.Page{URL: rawURL, Title: filepath.Base(rawURL), Text: truncate(text, 100000)}, nil
	case ".xlsx":
		text, err := extractXLSX(body)
		if err != nil {
			return scrape.Page{}, err
		}
		return scrape.Page{URL: rawURL, Title: filepath.Base(rawURL), Text: truncate(text, 100000)}, nil
	default:
		title, text := extractHTML(body)
		if title == "" {
			title = filepath.Base(rawURL)
		}
		return scrape.Page{URL: rawURL, Title: title, Text: truncate(text, 10000)}, nil
	}
}

// extractHTML walks the document skipping script/style/noscript nodes,
// matching internal/tools/fetch.go's extractText.
func extractHTML(body []byte) (title, text string) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", cleanWhitespace(stripTagsPattern.ReplaceAllString(string(body), ""))
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return title, cleanWhitespace(sb.String())
}

var stripTagsPattern = regexp.MustCompile(`<[^>]*>`)
var whitespacePattern = regexp.MustCompile(`\s+`)

func cleanWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// extractPDF extracts text from in-memory PDF bytes via a temp file,
// since ledongthuc/pdf reads from a path. Grounded on
// internal/tools/pdf.go's page-by-page GetPlainText loop.
func extractPDF(body []byte) (string, error) {
	tmp, err := writeTemp(body, "*.pdf")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	f, r, err := pdf.Open(tmp)
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	numPages := r.NumPage()
	maxPages := numPages
	if maxPages > 50 {
		maxPages = 50
	}
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// extractDOCX extracts text from in-memory DOCX bytes via a temp file.
// Grounded on internal/tools/docx.go's cleanDocxContent.
func extractDOCX(body []byte) (string, error) {
	tmp, err := writeTemp(body, "*.docx")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	r, err := docx.ReadDocxFile(tmp)
	if err != nil {
		return "", fmt.Errorf("open DOCX: %w", err)
	}
	defer r.Close()

	content := r.Editable().GetContent()
	lines := strings.Split(content, "\n")
	var cleaned []string
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, "\n\n"), nil
}

// extractXLSX renders a textual preview of the first few sheets.
// Grounded on internal/tools/xlsx.go's formatXLSXRow.
func extractXLSX(body []byte) (string, error) {
	tmp, err := writeTemp(body, "*.xlsx")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp)

	f, err := excelize.OpenFile(tmp)
	if err != nil {
		return "", fmt.Errorf("open XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var sb strings.Builder
	maxSheets := len(sheets)
	if maxSheets > 3 {
		maxSheets = 3
	}
	for i := 0; i < maxSheets; i++ {
		rows, err := f.GetRows(sheets[i])
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "=== Sheet: %s ===\n", sheets[i])
		maxRows := len(rows)
		if maxRows > 20 {
			maxRows = 20
		}
		for r := 0; r < maxRows; r++ {
			sb.WriteString(strings.Join(rows[r], " | "))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func writeTemp(body []byte, pattern string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(body); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n...[truncated]"
}
