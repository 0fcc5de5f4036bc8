package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"fundrouter/internal/core"
)

type stubBuilder struct {
	base string
}

func (b *stubBuilder) Build(ctx context.Context, r Request, v Variant) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, b.base+r.Path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Variant", v.String())
	return req, nil
}

type stubClassifier struct{}

func (stubClassifier) Classify(status int, body []byte) error {
	text := string(body)
	if strings.Contains(text, "signature") {
		return &AuthError{Exchange: "stub", Code: "-1022", Msg: "signature invalid"}
	}
	if status/100 != 2 {
		return &RemoteError{Exchange: "stub", Code: "400", Msg: strings.TrimSpace(text)}
	}
	return nil
}

func newTestClient(base string, maxAttempts int, backoff time.Duration) *Client {
	return NewClient(&stubBuilder{base: base}, stubClassifier{}, Options{
		Exchange:       "stub",
		MaxAttempts:    maxAttempts,
		InitialBackoff: backoff,
		RatePerSec:     1000,
		Burst:          100,
	})
}

func TestDoRetriesTransientAndBacksOff(t *testing.T) {
	var mu sync.Mutex
	var hits []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		n := len(hits)
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3, 20*time.Millisecond)
	body, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/ping"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !strings.Contains(string(body), "ok") {
		t.Fatalf("Do() body = %s", body)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(hits) != 3 {
		t.Fatalf("attempts = %d, want 3", len(hits))
	}
	first := hits[1].Sub(hits[0])
	second := hits[2].Sub(hits[1])
	if first < 20*time.Millisecond {
		t.Fatalf("first delay = %v, want >= 20ms", first)
	}
	if second < 2*first-10*time.Millisecond {
		t.Fatalf("second delay = %v, want roughly >= 2x first (%v)", second, first)
	}
}

func TestDoDoesNotRetryRemoteError(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":400,"msg":"bad symbol"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3, time.Millisecond)
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"})
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Do() error = %v, want RemoteError", err)
	}
	if hits != 1 {
		t.Fatalf("attempts = %d, want 1", hits)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3, time.Millisecond)
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Do() error = %v, want TransportError", err)
	}
	if te.Status != http.StatusServiceUnavailable {
		t.Fatalf("Status = %d, want 503", te.Status)
	}
	if hits != 3 {
		t.Fatalf("attempts = %d, want 3", hits)
	}
}

func TestDoAuthFallbackVariantLadder(t *testing.T) {
	var variants []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := r.Header.Get("X-Variant")
		variants = append(variants, v)
		switch v {
		case "raw-query":
			w.Write([]byte(`{"ok":true}`))
		default:
			w.Write([]byte(`{"code":-1022,"msg":"signature for this request is not valid"}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3, time.Millisecond)
	body, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/signed", Auth: AuthSigned})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !strings.Contains(string(body), "ok") {
		t.Fatalf("Do() body = %s", body)
	}
	want := []string{"default", "host-port", "raw-query"}
	if len(variants) != len(want) {
		t.Fatalf("variants = %v, want %v", variants, want)
	}
	for i := range want {
		if variants[i] != want[i] {
			t.Fatalf("variants = %v, want %v", variants, want)
		}
	}
}

func TestDoNoAuthFallbackForUnsignedCalls(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`{"code":-1022,"msg":"signature for this request is not valid"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3, time.Millisecond)
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/open"})
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Do() error = %v, want AuthError", err)
	}
	if hits != 1 {
		t.Fatalf("attempts = %d, want 1 (no fallback for unsigned)", hits)
	}
}

func TestDoCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c := newTestClient(srv.URL, 3, time.Second)
	_, err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/x"})
	if !errors.Is(err, core.ErrInterrupted) {
		t.Fatalf("Do() error = %v, want ErrInterrupted", err)
	}
}

func TestRawQueryEncodeSortedUnescaped(t *testing.T) {
	params := url.Values{}
	params.Set("b", "x y")
	params.Set("a", "1")
	if got := RawQueryEncode(params); got != "a=1&b=x y" {
		t.Fatalf("RawQueryEncode() = %q", got)
	}
}

func TestHostWithPort(t *testing.T) {
	if got := HostWithPort("https://api.example.com"); got != "https://api.example.com:443" {
		t.Fatalf("HostWithPort(https) = %s", got)
	}
	if got := HostWithPort("http://api.example.com/v1"); got != "http://api.example.com:80/v1" {
		t.Fatalf("HostWithPort(http) = %s", got)
	}
	if got := HostWithPort("https://api.example.com:8443"); got != "https://api.example.com:8443" {
		t.Fatalf("HostWithPort(explicit port) = %s", got)
	}
}
