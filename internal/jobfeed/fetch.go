package jobfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/jonathan/career-copilot/internal/types"
)

// DefaultTimeout is the HTTP request timeout for posting fetches.
const DefaultTimeout = 30 * time.Second

const userAgent = "Mozilla/5.0 (compatible; CareerCopilot/1.0)"

// FetchError represents a failure to retrieve or parse a posting page.
type FetchError struct {
	URL     string
	Message string
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// FetchOptions configures posting retrieval.
type FetchOptions struct {
	Timeout    time.Duration
	UseBrowser bool
}

// FromURL retrieves a job posting page and extracts its main text. When the
// plain HTTP fetch yields a near-empty page and UseBrowser is set, the page
// is re-rendered in a headless browser.
func FromURL(ctx context.Context, urlStr string, opts FetchOptions) (*types.JobPosting, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &FetchError{URL: urlStr, Message: "invalid URL", Cause: err}
	}

	html, err := fetchHTML(ctx, urlStr, opts.Timeout)
	if err != nil {
		return nil, err
	}

	text, title, err := extractPosting(html)
	if err != nil {
		return nil, &FetchError{URL: urlStr, Message: "failed to parse HTML", Cause: err}
	}

	// JavaScript-rendered boards serve a shell page to plain HTTP clients.
	if renderedTooShort(text) && opts.UseBrowser {
		html, err = renderWithBrowser(ctx, urlStr, opts.Timeout)
		if err != nil {
			return nil, &FetchError{URL: urlStr, Message: "browser rendering failed", Cause: err}
		}
		text, title, err = extractPosting(html)
		if err != nil {
			return nil, &FetchError{URL: urlStr, Message: "failed to parse rendered HTML", Cause: err}
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &FetchError{URL: urlStr, Message: "no posting text found"}
	}

	posting := &types.JobPosting{
		ID:      uuid.NewString(),
		Title:   title,
		RawText: NormalizeText(text),
	}
	return posting, nil
}

func fetchHTML(ctx context.Context, urlStr string, timeout time.Duration) (string, error) {
	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", &FetchError{URL: urlStr, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{URL: urlStr, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: urlStr, Message: "failed to read response body", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: urlStr, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
	return string(body), nil
}

// postingSelectors are tried in order; the first match wins.
var postingSelectors = []string{
	".job-description",
	".job-content",
	"#job-description",
	".posting-content",
	".job-details",
	"[data-testid='job-description']",
	"main",
	"article",
	".content",
}

// extractPosting pulls the posting body text and page title out of HTML.
func extractPosting(html string) (text, title string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", err
	}

	doc.Find("nav, footer, header, script, style, noscript, .ad, .sidebar, .cookie-banner, .popup").Remove()

	var content *goquery.Selection
	for _, selector := range postingSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			content = sel.First()
			break
		}
	}
	if content == nil {
		content = doc.Find("body")
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	return content.Text(), title, nil
}
