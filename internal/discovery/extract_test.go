package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const homepageHTML = `<!DOCTYPE html>
<html>
<head><title>Acme | Observability</title><style>body { color: red; }</style></head>
<body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<h1>Acme monitors everything</h1>
<p>Traces &amp; metrics for modern teams. Padding padding padding padding padding.</p>
<script>analytics.track("visit");</script>
<footer>Copyright Acme</footer>
</body>
</html>`

func TestExtract(t *testing.T) {
	var aboutHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(homepageHTML))
		case "/about":
			aboutHits++
			_, _ = w.Write([]byte("<html><head><title>About</title></head><body><p>" +
				strings.Repeat("Founded in 2019. ", 10) + "</p></body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewHTTPExtractor()
	content, err := e.Extract(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Acme | Observability", content.Title)
	assert.Equal(t, 2, content.Pages)
	assert.Equal(t, 1, aboutHits)
	assert.Contains(t, content.Text, "Acme monitors everything")
	assert.Contains(t, content.Text, "Traces & metrics")
	assert.Contains(t, content.Text, "Founded in 2019.")
	// Script, style, nav, and footer blocks are dropped.
	assert.NotContains(t, content.Text, "analytics.track")
	assert.NotContains(t, content.Text, "color: red")
	assert.NotContains(t, content.Text, "Copyright")
}

func TestExtract_HomepageFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	e := NewHTTPExtractor()
	_, err := e.Extract(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestExtract_TruncatesLongContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("<html><head><title>Big</title></head><body><p>" +
			strings.Repeat("word ", 10000) + "</p></body></html>"))
	}))
	defer srv.Close()

	e := NewHTTPExtractor()
	content, err := e.Extract(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(content.Text), maxContentChars)
}

func TestStripHTML(t *testing.T) {
	out := stripHTML(`<div><p>Hello&nbsp;<b>world</b></p><script>x()</script></div>`)
	assert.Equal(t, "Hello world", out)
}
