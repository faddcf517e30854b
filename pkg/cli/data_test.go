package cli

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/radlabel/radlabel/pkg/data"
)

func TestOptional(t *testing.T) {
	if optional("") != nil {
		t.Error("expected nil for empty string")
	}
	if optional("undefined") != nil {
		t.Error("expected nil for undefined")
	}
	if v := optional("train"); v == nil || *v != "train" {
		t.Errorf("expected train, got %v", v)
	}
}

func TestQueryParamInt(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 7},
		{"l=5", 5},
		{"l=abc", 7},
		{"l=0", 7},
		{"l=501", 7},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/test?"+tc.query, nil)
		if got := queryParamInt(r, "l", 7); got != tc.want {
			t.Errorf("queryParamInt(%q) = %d, expected %d", tc.query, got, tc.want)
		}
	}
}

func TestRouter(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	if err := data.Init(dsn); err != nil {
		t.Fatal(err)
	}
	db, err := data.GetDB(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	srv := httptest.NewServer(makeRouter(db))
	defer srv.Close()

	get := func(path string) int {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	// empty database, static surface still serves
	for _, path := range []string{"/", "/favicon.svg", "/data/splits", "/data/runs", "/data/models"} {
		if code := get(path); code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, code)
		}
	}

	if code := get("/data/lf-summary?s=dev"); code != http.StatusNotFound {
		t.Errorf("expected 404 for lf-summary without runs, got %d", code)
	}
	if code := get("/data/report"); code != http.StatusBadRequest {
		t.Errorf("expected 400 for report without id, got %d", code)
	}
	if code := get("/data/report?id=no-such-doc"); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown report, got %d", code)
	}
}
