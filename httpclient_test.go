package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewHTTPClient(HTTPConfig{Timeout: 5 * time.Second, MaxRetries: 3}, nil, testLogger())
	client.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)

	resp, err := client.R().Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.EqualValues(t, 3, calls.Load())
}

func TestNewHTTPClient_SendsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	_, err := NewHTTPClient(HTTPConfig{Timeout: time.Second}, nil, testLogger()).R().Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "startpage/1.0", ua)
}

func TestNewHTTPClient_GoesThroughOfflineCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("image"))
	}))
	defer srv.Close()

	cache := openTestCache(t, filepath.Join(t.TempDir(), "offline.db"), "startpage-v1")
	tr := NewCachingTransport(cache, http.DefaultTransport, nil, testLogger())
	client := NewHTTPClient(HTTPConfig{Timeout: time.Second, Debug: true}, tr, testLogger())

	resp, err := client.R().Get(srv.URL + "/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "stored", resp.Header().Get(cacheStatusHeader))

	resp, err = client.R().Get(srv.URL + "/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "hit", resp.Header().Get(cacheStatusHeader))
	assert.Equal(t, "image", resp.String())
	assert.EqualValues(t, 1, calls.Load())
}
