package net

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte("label,xray_paths,text\n"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "train.csv")
	err := Download(context.Background(), nil, srv.URL+"/train.csv", path)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "label,xray_paths,text\n", string(b))
}

func TestDownload_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	err := Download(context.Background(), srv.Client(), srv.URL+"/gone.csv", filepath.Join(t.TempDir(), "out"))
	assert.ErrorIs(t, err, ErrURLNotFound)
}

func TestDownload_RetriesServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	err := Download(context.Background(), srv.Client(), srv.URL, filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDownload_BadPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	err := Download(context.Background(), srv.Client(), srv.URL, filepath.Join(t.TempDir(), "missing", "out"))
	assert.Error(t, err)
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"openi-cxr","splits":{"train":"/train.csv"}}`))
	}))
	defer srv.Close()

	var m struct {
		Name   string            `json:"name"`
		Splits map[string]string `json:"splits"`
	}
	err := GetJSON(context.Background(), srv.Client(), srv.URL, &m)
	require.NoError(t, err)
	assert.Equal(t, "openi-cxr", m.Name)
	assert.Equal(t, "/train.csv", m.Splits["train"])
}

func TestGetJSON_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	var m map[string]string
	err := GetJSON(context.Background(), srv.Client(), srv.URL, &m)
	assert.ErrorIs(t, err, ErrURLNotFound)
}

func TestGetJSON_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var m map[string]string
	err := GetJSON(context.Background(), srv.Client(), srv.URL, &m)
	assert.ErrorContains(t, err, "decoding")
}
