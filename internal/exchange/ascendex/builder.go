// Package ascendex implements a partial exchange client for AscendEx.
//
// AscendEx routes account endpoints under a per-user account group
// prefix that has to be discovered once via the signed info endpoint.
package ascendex

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

const apiPrefix = "/api/pro/v1/"

// builder signs requests with base64 HMAC-SHA256 over timestamp+apiPath
// carried in x-auth-* headers. apiPath is the route after the version
// prefix, so the account-group segment never enters the prehash.
type builder struct {
	baseURL    string
	altBaseURL string
	apiKey     string
	apiSecret  string
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

	target := base + r.Path
	if len(r.Query) > 0 {
		query := r.Query.Encode()
		if v == transport.VariantRawQuery {
			query = transport.RawQueryEncode(r.Query)
		}
		target += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, bytes.NewReader(r.Body))
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
	mac := hmac.New(sha256.New, []byte(b.apiSecret))
	mac.Write([]byte(ts + "+" + signPath(r.Path)))
	req.Header.Set("x-auth-key", b.apiKey)
	req.Header.Set("x-auth-timestamp", ts)
	req.Header.Set("x-auth-signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return req, nil
}

// signPath extracts the route after the version prefix: both
// "/api/pro/v1/info" and "/3/api/pro/v1/cash/balance" sign the part
// after "/api/pro/v1/".
func signPath(path string) string {
	if i := strings.Index(path, apiPrefix); i >= 0 {
		return path[i+len(apiPrefix):]
	}
	return strings.TrimPrefix(path, "/")
}

type classifier struct{}

var authCodes = map[int64]bool{
	300001: true, // invalid api key
	300002: true, // invalid signature
	300011: true, // permission denied
}

func (classifier) Classify(status int, body []byte) error {
	var envelope struct {
		Code    int64  `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &transport.ProtocolError{Exchange: name, Err: err}
	}
	if envelope.Code == 0 {
		return nil
	}
	code := strconv.FormatInt(envelope.Code, 10)
	if status == http.StatusUnauthorized || authCodes[envelope.Code] {
		return &transport.AuthError{Exchange: name, Code: code, Msg: envelope.Message}
	}
	if envelope.Message == "" {
		envelope.Message = fmt.Sprintf("http %d", status)
	}
	return &transport.RemoteError{Exchange: name, Code: code, Msg: envelope.Message}
}
