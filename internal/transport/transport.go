package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"fundrouter/internal/core"
	"fundrouter/internal/logging"
)

type AuthType int

const (
	AuthNone AuthType = iota
	AuthAPIKey
	AuthSigned
)

// Request is one logical exchange API call, independent of how the
// owning exchange signs it.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
	Auth   AuthType
}

// Variant selects an alternate request canonicalization. Some exchanges
// embed the Host header in the canonical signing string and accept more
// than one canonicalization; when a signed request is rejected with a
// signature-invalid code the same logical call is retried against the
// variants below, in order, stopping at the first success. The order is
// preserved policy from operating against those gateways.
type Variant int

const (
	VariantDefault Variant = iota
	VariantHostPort
	VariantRawQuery
	VariantAltBase
)

var authFallbackOrder = []Variant{VariantHostPort, VariantRawQuery, VariantAltBase}

func (v Variant) String() string {
	switch v {
	case VariantHostPort:
		return "host-port"
	case VariantRawQuery:
		return "raw-query"
	case VariantAltBase:
		return "alt-base"
	default:
		return "default"
	}
}

// Builder produces a signed *http.Request for one exchange dialect.
type Builder interface {
	Build(ctx context.Context, r Request, v Variant) (*http.Request, error)
}

// Classifier maps an HTTP response onto the transport error taxonomy.
// It is called for every response, including 2xx, because some exchanges
// report errors in a 200 body. A nil return means success.
type Classifier interface {
	Classify(status int, body []byte) error
}

type Options struct {
	Exchange       string
	MaxAttempts    int
	InitialBackoff time.Duration
	Timeout        time.Duration
	RatePerSec     float64
	Burst          int
	BreakerLimit   int
	Log            logrus.FieldLogger
}

// Client executes signed requests with bounded retries, exponential
// backoff, and the signature-fallback variant ladder.
type Client struct {
	exchange       string
	httpClient     *http.Client
	builder        Builder
	classifier     Classifier
	limiter        *rate.Limiter
	breaker        *Breaker
	maxAttempts    int
	initialBackoff time.Duration
	log            logrus.FieldLogger
}

func NewClient(builder Builder, classifier Classifier, opts Options) *Client {
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	initialBackoff := opts.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 500 * time.Millisecond
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ratePerSec := opts.RatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 5
	}
	breakerLimit := opts.BreakerLimit
	if breakerLimit < 1 {
		breakerLimit = 8
	}
	log := opts.Log
	if log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logger
	}
	return &Client{
		exchange:       opts.Exchange,
		httpClient:     &http.Client{Timeout: timeout},
		builder:        builder,
		classifier:     classifier,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSec), burst),
		breaker:        NewBreaker(breakerLimit, 30*time.Second),
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		log:            log.WithField("exchange", opts.Exchange),
	}
}

// Do executes the request: retry with backoff on transient failures, and
// on a signature rejection of a signed call, walk the fallback variants.
func (c *Client) Do(ctx context.Context, r Request) ([]byte, error) {
	body, err := c.doWithRetry(ctx, r, VariantDefault)
	if err == nil {
		return body, nil
	}
	var authErr *AuthError
	if r.Auth != AuthSigned || !errors.As(err, &authErr) {
		return nil, err
	}
	for _, v := range authFallbackOrder {
		c.log.WithFields(logrus.Fields{
			"path":    r.Path,
			"variant": v.String(),
		}).Warn("signature rejected, retrying with fallback variant")
		body, verr := c.doOnce(ctx, r, v)
		if verr == nil {
			return body, nil
		}
		if !errors.As(verr, &authErr) {
			return nil, verr
		}
		err = verr
	}
	return nil, err
}

func (c *Client) doWithRetry(ctx context.Context, r Request, v Variant) ([]byte, error) {
	delay := c.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			c.log.WithFields(logrus.Fields{
				"path":    r.Path,
				"attempt": attempt,
				"delay":   delay.String(),
			}).Warn(logging.Redact(fmt.Sprintf("retrying after %v", lastErr)))
			if err := Sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("%w: %v", core.ErrInterrupted, err)
			}
			delay *= 2
		}
		body, err := c.doOnce(ctx, r, v)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, r Request, v Variant) ([]byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInterrupted, err)
	}
	req, err := c.builder.Build(ctx, r, v)
	if err != nil {
		return nil, err
	}
	c.log.WithFields(logrus.Fields{
		"method":  r.Method,
		"path":    r.Path,
		"variant": v.String(),
	}).Debug(logging.Redact(req.URL.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.Failure()
		return nil, &TransportError{Exchange: c.exchange, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.Failure()
		return nil, &TransportError{Exchange: c.exchange, Err: err}
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		c.breaker.Failure()
		return nil, &TransportError{
			Exchange: c.exchange,
			Status:   resp.StatusCode,
			Err:      errors.New(strings.TrimSpace(logging.Redact(string(body)))),
		}
	}
	c.breaker.Success()
	if err := c.classifier.Classify(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func retryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RawQueryEncode joins parameters in sorted key order without
// URL-encoding the values, for the raw signing variant some gateways
// expect.
func RawQueryEncode(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range params[k] {
			pairs = append(pairs, k+"="+v)
		}
	}
	return strings.Join(pairs, "&")
}

// HostWithPort appends the scheme's default port to a base URL host, for
// the host-port signing variant.
func HostWithPort(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" || strings.Contains(u.Host, ":") {
		return base
	}
	switch u.Scheme {
	case "https":
		u.Host += ":443"
	case "http":
		u.Host += ":80"
	}
	return u.String()
}
