// Package fetch implements the Outbound Fetcher (spec.md §4.2): a hardened
// HTTP(S) client with SSRF-validated dialing, manual redirect handling,
// streaming size enforcement, retry/backoff, and telemetry events.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/gomcpgo/superfetch/pkg/apperrors"
	"github.com/gomcpgo/superfetch/pkg/logging"
	"github.com/gomcpgo/superfetch/pkg/urlguard"
)

const slowRequestThreshold = 5000 * time.Millisecond

// Options configures a single Fetch call.
type Options struct {
	CustomHeaders    map[string]string
	Timeout          time.Duration
	MaxRedirects     int
	MaxContentLength int64
	Retries          int
}

// Result is the outcome of a successful fetch.
type Result struct {
	Body        string
	Size        int64
	FinalURL    string
	StatusCode  int
	ContentType string
}

// addrResolver is the subset of ValidatingResolver's behavior the fetcher
// dials through; same-package tests substitute a permissive fake so the
// retry/redirect/streaming mechanics can run against a real httptest.Server
// without tripping the loopback block that a production resolver enforces.
type addrResolver interface {
	Resolve(ctx context.Context, host string) ([]netip.Addr, error)
}

// Fetcher issues validated, retried, size-bounded outbound requests.
type Fetcher struct {
	userAgent string
	telemetry *Telemetry
	resolver  addrResolver
	validate  func(string) (string, error)
}

func New(userAgent string, telemetry *Telemetry) *Fetcher {
	if telemetry == nil {
		telemetry = NewTelemetry()
	}
	return &Fetcher{
		userAgent: userAgent,
		telemetry: telemetry,
		resolver:  urlguard.NewValidatingResolver(),
		validate:  urlguard.ValidateAndNormalizeURL,
	}
}

func (f *Fetcher) Telemetry() *Telemetry { return f.telemetry }

// Fetch implements the full retry/redirect/streaming contract of §4.2.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	normalized, err := f.validate(rawURL)
	if err != nil {
		return nil, err
	}

	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 5
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = 10 * 1024 * 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	requestID := newRequestID()
	log := logging.FromContext(ctx)
	start := time.Now()
	f.telemetry.publish(Event{V: 1, Type: "start", RequestID: requestID, URL: RedactURL(normalized), Method: "GET"})

	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, apperrors.Aborted(normalized)
			case <-time.After(backoff(attempt - 1)):
			}
		}

		res, class, err := f.attempt(ctx, normalized, opts, requestID)
		if err == nil {
			dur := time.Since(start)
			f.telemetry.publish(Event{V: 1, Type: "end", RequestID: requestID, URL: RedactURL(normalized), Method: "GET", Status: res.StatusCode, Duration: dur})
			if dur > slowRequestThreshold {
				log.Warnw("slow outbound fetch", "url", RedactURL(normalized), "duration_ms", dur.Milliseconds())
			}
			return res, nil
		}

		lastErr = err
		ae, _ := apperrors.As(err)
		code := ""
		status := 0
		if ae != nil {
			code = ae.Code
			status = ae.HTTPStatus
		}
		f.telemetry.publish(Event{V: 1, Type: "error", RequestID: requestID, URL: RedactURL(normalized), Method: "GET", Status: status, Code: code, Error: err.Error()})

		if class == classFatal {
			return nil, err
		}
		if attempt == opts.Retries {
			return nil, err
		}
		log.Debugw("retrying outbound fetch", "url", RedactURL(normalized), "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (f *Fetcher) attempt(ctx context.Context, startURL string, opts Options, requestID string) (*Result, retryClass, error) {
	currentURL := startURL
	sanitizedHeaders := SanitizeHeaders(opts.CustomHeaders)

	client := f.newClient(opts.Timeout)

	for hop := 0; ; hop++ {
		if hop > opts.MaxRedirects {
			return nil, classFatal, apperrors.BadRedirect(currentURL, "Too many redirects")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, currentURL, nil)
		if err != nil {
			return nil, classFatal, apperrors.Wrap(apperrors.KindFetch, 502, "", err)
		}
		f.applyHeaders(req, sanitizedHeaders)

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, classFatal, apperrors.Aborted(currentURL)
			}
			return nil, classRetryableTransport, apperrors.Wrap(apperrors.KindFetch, 502, "", err)
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return nil, classFatal, apperrors.BadRedirect(currentURL, "redirect response missing Location header")
			}
			next, err := resolveRedirect(currentURL, loc)
			if err != nil {
				return nil, classFatal, apperrors.BadRedirect(currentURL, err.Error())
			}
			normalizedNext, err := f.validate(next)
			if err != nil {
				return nil, classFatal, err
			}
			currentURL = normalizedNext
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			class := classifyStatus(resp.StatusCode)
			if class == classFatal {
				return nil, classFatal, apperrors.Fetch(currentURL, "", fmt.Sprintf("upstream returned status %d", resp.StatusCode), resp.StatusCode)
			}
			return nil, class, apperrors.Fetch(currentURL, "", fmt.Sprintf("upstream returned status %d", resp.StatusCode), resp.StatusCode)
		}

		body, size, err := f.readBody(ctx, resp, opts.MaxContentLength, currentURL)
		resp.Body.Close()
		if err != nil {
			return nil, classFatal, err
		}

		return &Result{
			Body:        body,
			Size:        size,
			FinalURL:    currentURL,
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
		}, classFatal, nil
	}
}

func (f *Fetcher) applyHeaders(req *http.Request, custom map[string]string) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range custom {
		if strings.EqualFold(k, "user-agent") {
			continue
		}
		req.Header.Set(k, v)
	}
}

// readBody enforces pre-read Content-Length checks and streams the decoded
// body, failing the instant cumulative bytes exceed maxContentLength.
func (f *Fetcher) readBody(ctx context.Context, resp *http.Response, maxContentLength int64, currentURL string) (string, int64, error) {
	if resp.ContentLength > maxContentLength {
		return "", 0, apperrors.Fetch(currentURL, "", "Response exceeds maximum size", 502)
	}

	decoded, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		decoded = resp.Body
	}

	limited := io.LimitReader(decoded, maxContentLength+1)

	type readResult struct {
		data []byte
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(limited)
		ch <- readResult{data, err}
	}()

	select {
	case <-ctx.Done():
		return "", 0, apperrors.Aborted(currentURL)
	case r := <-ch:
		if r.err != nil {
			return "", 0, apperrors.Wrap(apperrors.KindFetch, 502, "", r.err)
		}
		if int64(len(r.data)) > maxContentLength {
			return "", 0, apperrors.Fetch(currentURL, "", "Response exceeds maximum size", 502)
		}
		return string(r.data), int64(len(r.data)), nil
	}
}

func resolveRedirect(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL for redirect: %w", err)
	}
	locURL, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid redirect Location: %w", err)
	}
	resolved := baseURL.ResolveReference(locURL)
	if resolved.User != nil {
		return "", fmt.Errorf("redirect target contains credentials")
	}
	return resolved.String(), nil
}

// newClient builds an http.Client whose dialer resolves through the
// validating resolver and refuses to follow redirects automatically (the
// fetcher drives redirects itself so each hop can be re-validated).
func (f *Fetcher) newClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	transport := &http.Transport{
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			allowed, err := f.resolver.Resolve(ctx, host)
			if err != nil {
				return nil, err
			}
			var lastErr error
			for _, ip := range allowed {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, lastErr
		},
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

