package discovery

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// maxBodyBytes bounds how much of a page is read.
const maxBodyBytes = 512 * 1024

// maxContentChars bounds the extracted text passed into LLM prompts.
const maxContentChars = 24000

// SiteContent is the plaintext extracted from a domain's public pages.
type SiteContent struct {
	URL   string
	Title string
	Text  string
	Pages int
}

// Extractor pulls analyzable text from a domain.
type Extractor interface {
	Extract(ctx context.Context, domainURL string) (*SiteContent, error)
}

// HTTPExtractor fetches pages via net/http and strips HTML to plaintext.
type HTTPExtractor struct {
	client *http.Client
	// extraPaths are fetched in addition to the homepage; failures there are
	// ignored.
	extraPaths []string
}

// NewHTTPExtractor creates an extractor with sensible defaults.
func NewHTTPExtractor() *HTTPExtractor {
	return &HTTPExtractor{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		extraPaths: []string{"/about", "/products"},
	}
}

// Extract fetches the homepage and a few well-known paths, returning the
// combined plaintext. The homepage must succeed; extra pages are best-effort.
func (e *HTTPExtractor) Extract(ctx context.Context, domainURL string) (*SiteContent, error) {
	base := strings.TrimSuffix(domainURL, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	title, text, err := e.fetchPage(ctx, base)
	if err != nil {
		return nil, eris.Wrap(err, "discovery: extract homepage")
	}

	content := &SiteContent{URL: base, Title: title, Text: text, Pages: 1}
	for _, path := range e.extraPaths {
		_, extra, err := e.fetchPage(ctx, base+path)
		if err != nil {
			zap.L().Debug("discovery: skipping extra page",
				zap.String("url", base+path),
				zap.Error(err),
			)
			continue
		}
		content.Text += "\n\n" + extra
		content.Pages++
	}

	if len(content.Text) > maxContentChars {
		content.Text = content.Text[:maxContentChars]
	}
	return content, nil
}

func (e *HTTPExtractor) fetchPage(ctx context.Context, pageURL string) (title, text string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; VisibilityBot/1.0)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", "", eris.Wrap(err, "fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", "", eris.Errorf("status %d from %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", eris.Wrap(err, "read body")
	}
	if len(body) < 100 {
		return "", "", eris.New("empty page")
	}

	return extractTitle(body), stripHTML(string(body)), nil
}

var titleRe = regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)

func extractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

// stripHTML removes scripts/styles/nav/footer, strips tags, decodes entities,
// and collapses whitespace.
func stripHTML(html string) string {
	for _, tag := range []string{"script", "style", "nav", "footer"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}

	tagRe := regexp.MustCompile(`<[^>]+>`)
	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	spaceRe := regexp.MustCompile(`[ \t]+`)
	html = spaceRe.ReplaceAllString(html, " ")

	nlRe := regexp.MustCompile(`\n{3,}`)
	html = nlRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
