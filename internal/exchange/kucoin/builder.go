package kucoin

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fundrouter/internal/transport"
)

// builder produces requests in the kucoin dialect: base64 HMAC-SHA256
// over timestamp+method+endpoint+body carried in KC-API-* headers, with
// a v2 key version and a signed passphrase.
type builder struct {
	baseURL    string
	altBaseURL string
	apiKey     string
	apiSecret  string
	passphrase string
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

	endpoint := r.Path
	if len(r.Query) > 0 {
		query := r.Query.Encode()
		if v == transport.VariantRawQuery {
			query = transport.RawQueryEncode(r.Query)
		}
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, base+endpoint, bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	if len(r.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Auth == transport.AuthNone {
		return req, nil
	}

	ts := strconv.FormatInt(b.now().UnixMilli(), 10)
	payload := ts + r.Method + endpoint + string(r.Body)
	req.Header.Set("KC-API-KEY", b.apiKey)
	req.Header.Set("KC-API-SIGN", signBase64(b.apiSecret, payload))
	req.Header.Set("KC-API-TIMESTAMP", ts)
	req.Header.Set("KC-API-PASSPHRASE", signBase64(b.apiSecret, b.passphrase))
	req.Header.Set("KC-API-KEY-VERSION", "2")
	return req, nil
}

func signBase64(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// kucoin reports errors in a 200 body; every response is classified by
// its envelope code.
type classifier struct{}

var authCodes = map[string]bool{
	"400003": true, // KC-API-KEY not exists
	"400004": true, // invalid KC-API-PASSPHRASE
	"400005": true, // invalid KC-API-SIGN
	"400006": true, // ip not in whitelist
	"400007": true, // access denied
	"411100": true, // user frozen
}

func (classifier) Classify(status int, body []byte) error {
	var envelope struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Code == "" {
		if status/100 == 2 {
			return &transport.ProtocolError{Exchange: name, Err: fmt.Errorf("missing response envelope")}
		}
		return &transport.ProtocolError{
			Exchange: name,
			Err:      fmt.Errorf("http %d: %s", status, strings.TrimSpace(string(body))),
		}
	}
	if envelope.Code == "200000" {
		return nil
	}
	if status == http.StatusUnauthorized || authCodes[envelope.Code] {
		return &transport.AuthError{Exchange: name, Code: envelope.Code, Msg: envelope.Msg}
	}
	return &transport.RemoteError{Exchange: name, Code: envelope.Code, Msg: envelope.Msg}
}
