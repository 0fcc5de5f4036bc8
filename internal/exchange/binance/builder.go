package binance

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fundrouter/internal/transport"
)

// builder produces signed-query requests in the binance dialect: HMAC
// SHA-256 over the canonical query string, signature appended as a query
// parameter, API key in the X-MBX-APIKEY header.
type builder struct {
	baseURL    string
	altBaseURL string
	apiKey     string
	apiSecret  string
	recvWindow time.Duration
	now        func() time.Time
}

func (b *builder) Build(ctx context.Context, r transport.Request, v transport.Variant) (*http.Request, error) {
	base := b.baseURL
	switch v {
	case transport.VariantHostPort:
		base = transport.HostWithPort(base)
	case transport.VariantAltBase:
		if b.altBaseURL != "" {
			base = b.altBaseURL
		}
	}

	params := url.Values{}
	for k, vs := range r.Query {
		params[k] = append([]string(nil), vs...)
	}
	var query string
	if r.Auth == transport.AuthSigned {
		params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
		if b.recvWindow > 0 {
			params.Set("recvWindow", strconv.FormatInt(b.recvWindow.Milliseconds(), 10))
		}
		payload := params.Encode()
		if v == transport.VariantRawQuery {
			payload = transport.RawQueryEncode(params)
		}
		query = payload + "&signature=" + sign(b.apiSecret, payload)
	} else {
		query = params.Encode()
	}

	urlStr := base + r.Path
	if query != "" {
		urlStr += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, urlStr, bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	if r.Auth == transport.AuthAPIKey || r.Auth == transport.AuthSigned {
		req.Header.Set("X-MBX-APIKEY", b.apiKey)
	}
	return req, nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

type classifier struct{}

const (
	codeInvalidSignature = -1022
	codeInvalidAPIKey    = -2014
	codeRejectedKey      = -2015
)

func (classifier) Classify(status int, body []byte) error {
	if status/100 == 2 {
		return nil
	}
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil || e.Msg == "" {
		return &transport.ProtocolError{
			Exchange: name,
			Err:      fmt.Errorf("http %d: %s", status, strings.TrimSpace(string(body))),
		}
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden,
		e.Code == codeInvalidSignature, e.Code == codeInvalidAPIKey, e.Code == codeRejectedKey:
		return &transport.AuthError{Exchange: name, Code: strconv.Itoa(e.Code), Msg: e.Msg}
	}
	return &transport.RemoteError{Exchange: name, Code: strconv.Itoa(e.Code), Msg: e.Msg}
}
