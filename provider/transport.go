package provider

import (
	"bytes"
	"io"
	"net/http"

	"github.com/oqtopus-team/bitorder/core"
	"go.uber.org/zap"
)

// loggingRoundTripper tags requests with the client user agent and logs
// every response body at debug level.
type loggingRoundTripper struct {
	next http.RoundTripper
}

func newLoggingClient(base *http.Client) *http.Client {
	c := *base
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	c.Transport = &loggingRoundTripper{next: next}
	return &c
}

func (lrt *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", core.UserAgent())
	resp, err := lrt.next.RoundTrip(req)
	if err != nil {
		zap.L().Error("API roundtrip failed", zap.String("url", redact(req)), zap.Error(err))
		return nil, err
	}

	bodyBytes, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		zap.L().Error("failed to read API response body", zap.Error(readErr), zap.Int("statusCode", resp.StatusCode), zap.String("url", redact(req)))
		return nil, readErr
	}

	zap.L().Debug("received API response",
		zap.String("method", req.Method),
		zap.String("url", redact(req)),
		zap.Int("statusCode", resp.StatusCode),
		zap.ByteString("responseBody", bodyBytes),
	)

	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	return resp, nil
}

// redact drops the access token from logged URLs.
func redact(req *http.Request) string {
	u := *req.URL
	q := u.Query()
	if q.Has(accessTokenParam) {
		q.Set(accessTokenParam, "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
