package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"content_ideas_assistant/failure"
)

// maxImageBytes bounds a single download.
var maxImageBytes int64 = 20 << 20

var downloadBackoff = 500 * time.Millisecond

// download fetches url with bounded retries on connectivity errors and 5xx replies.
func download(ctx context.Context, client *http.Client, url string, attempts int, logger *zap.Logger) ([]byte, error) {
	const op = "download"
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := downloadBackoff * time.Duration(1<<(i-1))
			select {
			case <-ctx.Done():
				return nil, classify(op, ctx.Err(), false, "")
			case <-time.After(wait):
			}
		}
		body, retry, err := fetch(ctx, client, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			break
		}
		logger.Debug("image download retry", zap.Int("attempt", i+1), zap.Error(err))
	}
	return nil, lastErr
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, bool, error) {
	const op = "download"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, failure.Wrap(op, failure.KindAPI, err, "bad image url")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, true, classify(op, err, false, "")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := failure.New(op, failure.KindAPI, "image download status %d", resp.StatusCode)
		return nil, resp.StatusCode >= 500, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, true, classify(op, fmt.Errorf("read image: %w", err), false, "")
	}
	if int64(len(body)) > maxImageBytes {
		return nil, false, failure.Generation(op, "image exceeds %d bytes", maxImageBytes)
	}
	if len(body) == 0 {
		return nil, false, failure.Generation(op, "downloaded image is empty")
	}
	return body, false, nil
}
