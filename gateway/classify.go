package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	openai "github.com/openai/openai-go"

	"content_ideas_assistant/failure"
)

// classify maps a transport or provider error onto the failure taxonomy.
// imagePath enables the content-policy check that only applies to images.
func classify(op string, err error, imagePath bool, secret string) error {
	if err == nil {
		return nil
	}
	if _, ok := failure.As(err); ok {
		return err
	}
	msg := scrub(err.Error(), secret)
	cause := errors.New(msg)
	lower := strings.ToLower(msg)

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		// Match phrasing against the body only; the URL may contain digits like 401.
		lower = strings.ToLower(apiErr.RawJSON() + " " + apiErr.Message + " " + apiErr.Code)
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return failure.Throttled(op, retryAfter(apiErr.Response), cause)
		case apiErr.StatusCode == http.StatusUnauthorized:
			return failure.Wrap(op, failure.KindAuthentication, cause, "authentication rejected")
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return failure.Wrap(op, failure.KindConnectivity, cause, "request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return failure.Wrap(op, failure.KindConnectivity, cause, "connection failed")
	}

	switch {
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return failure.Throttled(op, 0, cause)
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "api key"):
		return failure.Wrap(op, failure.KindAuthentication, cause, "authentication rejected")
	case imagePath && (strings.Contains(lower, "content policy") || strings.Contains(lower, "content_policy") || strings.Contains(lower, "safety")):
		return failure.Wrap(op, failure.KindPolicyRejection, cause, "prompt rejected by content policy")
	case strings.Contains(lower, "connection") || strings.Contains(lower, "timeout"):
		return failure.Wrap(op, failure.KindConnectivity, cause, "connection failed")
	}
	return failure.Wrap(op, failure.KindAPI, cause, "provider error")
}

func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func scrub(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}
