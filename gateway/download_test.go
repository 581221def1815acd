package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"content_ideas_assistant/failure"
)

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func withFastBackoff(t *testing.T) {
	t.Helper()
	prev := downloadBackoff
	downloadBackoff = time.Millisecond
	t.Cleanup(func() { downloadBackoff = prev })
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	withFastBackoff(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(pngStub)
	}))
	defer srv.Close()

	body, err := download(context.Background(), srv.Client(), srv.URL+"/img.png", 3, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, pngStub, body)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDownloadDoesNotRetryClientErrors(t *testing.T) {
	withFastBackoff(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := download(context.Background(), srv.Client(), srv.URL, 3, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, failure.KindAPI, failure.KindOf(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestDownloadGivesUpAfterAttempts(t *testing.T) {
	withFastBackoff(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := download(context.Background(), http.DefaultClient, url, 2, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, failure.KindConnectivity, failure.KindOf(err))
}

func TestDownloadRejectsOversizedImage(t *testing.T) {
	withFastBackoff(t)
	prev := maxImageBytes
	maxImageBytes = 16
	t.Cleanup(func() { maxImageBytes = prev })

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Write(make([]byte, 17))
	}))
	defer srv.Close()

	body, err := download(context.Background(), srv.Client(), srv.URL, 3, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, body)
	assert.Equal(t, failure.KindGeneration, failure.KindOf(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestDownloadAcceptsImageAtLimit(t *testing.T) {
	prev := maxImageBytes
	maxImageBytes = 16
	t.Cleanup(func() { maxImageBytes = prev })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(make([]byte, 16))
	}))
	defer srv.Close()

	body, err := download(context.Background(), srv.Client(), srv.URL, 1, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, body, 16)
}
