package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	userAgent      = "Mozilla/5.0 (compatible; ContentSummarizer/1.0)"
	strippedTags   = "script, style, noscript, iframe, svg, nav, header, footer, aside"
	truncateMarker = "..."
	maxBodyBytes   = 5 << 20
)

type Kind int

const (
	KindFetch Kind = iota
	KindDNS
	KindTimeout
	KindHTTPStatus
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindDNS:
		return "dns"
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	case KindEmpty:
		return "empty"
	default:
		return "fetch"
	}
}

// FetchError is the single failure type returned by Resolve. Its message is
// what ends up on the failed job, so it stays human readable.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindDNS:
		return "URL not found or DNS resolution failed"
	case KindTimeout:
		return "Request timeout"
	case KindHTTPStatus:
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
	case KindEmpty:
		return "No readable text found in webpage"
	default:
		if e.Err != nil {
			return "Failed to fetch URL: " + e.Err.Error()
		}
		return "Failed to fetch URL"
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

type Options struct {
	Timeout      time.Duration
	MaxRedirects int
	MaxChars     int
	// Client overrides the HTTP client; its CheckRedirect and Timeout are
	// replaced with the values above.
	Client *http.Client
}

// Resolver turns a URL into plain text ready for summarization.
type Resolver struct {
	client   *http.Client
	maxChars int
}

func New(opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRedirects < 0 {
		opts.MaxRedirects = 0
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 4000
	}

	client := &http.Client{}
	if opts.Client != nil {
		c := *opts.Client
		client = &c
	}
	client.Timeout = opts.Timeout
	maxRedirects := opts.MaxRedirects
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	return &Resolver{client: client, maxChars: opts.MaxChars}
}

// Resolve fetches rawURL, strips non-content markup and returns collapsed,
// truncated text. Every failure is a *FetchError.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", &FetchError{Kind: KindFetch, URL: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &FetchError{Kind: KindFetch, URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &FetchError{Kind: KindFetch, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", classify(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &FetchError{
			Kind:       KindHTTPStatus,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
		}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", classify(rawURL, err)
	}

	text := ExtractText(doc)
	if text == "" {
		return "", &FetchError{Kind: KindEmpty, URL: rawURL}
	}
	return Truncate(text, r.maxChars), nil
}

// ExtractText drops non-content elements and returns the whitespace-collapsed
// text of <body>, or of the whole document when there is no body.
func ExtractText(doc *goquery.Document) string {
	doc.Find(strippedTags).Remove()

	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// Truncate cuts s to limit characters and appends "..." when it had to cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + truncateMarker
}

func classify(rawURL string, err error) *FetchError {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &FetchError{Kind: KindDNS, URL: rawURL, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &FetchError{Kind: KindFetch, URL: rawURL, Err: err}
}
