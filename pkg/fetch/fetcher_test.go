package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// permissiveResolver resolves any host to loopback without consulting the
// production blocklist, so the mechanics under test here (retries,
// redirects, streaming limits) can run against a real httptest.Server
// without tripping the SSRF guard that pkg/urlguard enforces for real
// traffic. The guard itself is exercised by TestFetch_BlocksPrivateURL
// below and by pkg/urlguard's own tests.
type permissiveResolver struct{}

func (permissiveResolver) Resolve(_ context.Context, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{ip}, nil
	}
	return []netip.Addr{netip.MustParseAddr("127.0.0.1")}, nil
}

// newTestFetcher builds a Fetcher whose URL validation and DNS resolution
// are both permissive, for tests that need to dial a local httptest.Server.
func newTestFetcher(telemetry *Telemetry) *Fetcher {
	if telemetry == nil {
		telemetry = NewTelemetry()
	}
	return &Fetcher{
		userAgent: "superfetch-test/1.0",
		telemetry: telemetry,
		resolver:  permissiveResolver{},
		validate:  func(raw string) (string, error) { return raw, nil },
	}
}

func TestFetch_Basic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := newTestFetcher(nil)
	res, err := f.Fetch(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Contains(t, res.Body, "hello")
	assert.Equal(t, 200, res.StatusCode)
}

func TestFetch_RedirectLoopFails(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/next", http.StatusFound)
	}))
	defer srv.Close()

	f := newTestFetcher(nil)
	_, err := f.Fetch(context.Background(), srv.URL, Options{MaxRedirects: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Too many redirects")
}

func TestFetch_ContentLengthLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 2000)))
	}))
	defer srv.Close()

	f := newTestFetcher(nil)
	_, err := f.Fetch(context.Background(), srv.URL, Options{MaxContentLength: 500})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum size")
}

func TestFetch_BlocksPrivateURL(t *testing.T) {
	f := New("superfetch-test/1.0", nil)
	_, err := f.Fetch(context.Background(), "http://127.0.0.1/", Options{})
	require.Error(t, err)
}

func TestFetch_4xxNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher(nil)
	_, err := f.Fetch(context.Background(), srv.URL, Options{Retries: 3})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestFetch_5xxRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(nil)
	res, err := f.Fetch(context.Background(), srv.URL, Options{Retries: 3})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Body)
	assert.Equal(t, 3, attempts)
}

func TestTelemetry_SubscriberPanicDoesNotPropagate(t *testing.T) {
	tel := NewTelemetry()
	tel.Subscribe(func(Event) { panic("boom") })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(tel)
	res, err := f.Fetch(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Body)
}
