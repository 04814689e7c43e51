package ogd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ogdsync/internal/config"
)

func testClient(srv *httptest.Server) *Client {
	cfg := config.OGD{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		ResourceID: "resource-1",
		Timeout:    2 * time.Second,
	}
	return NewClient(cfg, srv.Client())
}

func TestFetchPage_QueryParameters(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	c := testClient(srv)
	if _, err := c.FetchPage(context.Background(), 1500, 500); err != nil {
		t.Fatalf("FetchPage: %v", err)
	}

	if gotPath != "/resource-1" {
		t.Errorf("path = %q, want /resource-1", gotPath)
	}
	want := map[string]string{
		"api-key": "test-key",
		"format":  "json",
		"limit":   "500",
		"offset":  "1500",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query[%s] = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestFetchPage_DecodesRecords(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"total": 2,
			"records": [
				{"CIN": "U12345MH2020PTC000001", "company_name": "Alpha Ltd"},
				{"CIN": "U12345MH2020PTC000002", "company_name": "Beta Ltd"}
			]
		}`))
	}))
	defer srv.Close()

	c := testClient(srv)
	records, err := c.FetchPage(context.Background(), 0, 500)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if got := records[0]["company_name"]; got != "Alpha Ltd" {
		t.Errorf("records[0].company_name = %v", got)
	}
}

func TestFetchPage_EmptyPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	c := testClient(srv)
	records, err := c.FetchPage(context.Background(), 10000, 500)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
}

func TestFetchPage_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(srv)
	_, err := c.FetchPage(context.Background(), 0, 500)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error %q does not mention status", err)
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("error %q does not include response body", err)
	}
}

func TestFetchPage_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records": [{`))
	}))
	defer srv.Close()

	c := testClient(srv)
	if _, err := c.FetchPage(context.Background(), 0, 500); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFetchPage_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(srv)
	if _, err := c.FetchPage(ctx, 0, 500); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
