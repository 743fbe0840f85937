package tle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCacheWriteLoadLatest(t *testing.T) {
	cache := NewCache(t.TempDir(), 3)

	base := time.Date(2025, 8, 17, 0, 0, 0, 0, time.UTC)
	if err := cache.Write("starlink", []byte("old"), base); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := cache.Write("starlink", []byte("new"), base.Add(time.Hour)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, ts, err := cache.LoadLatest("starlink")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if string(data) != "new" {
		t.Errorf("data = %q, want newest file", data)
	}
	if !ts.Equal(base.Add(time.Hour)) {
		t.Errorf("ts = %v, want %v", ts, base.Add(time.Hour))
	}
}

func TestCachePrunes(t *testing.T) {
	cache := NewCache(t.TempDir(), 2)

	base := time.Date(2025, 8, 17, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := cache.Write("active", []byte{byte('a' + i)}, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	files, err := cache.listFiles("active")
	if err != nil {
		t.Fatalf("listFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files after prune, want 2", len(files))
	}

	data, _, err := cache.LoadLatest("active")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if string(data) != "e" {
		t.Errorf("latest = %q, want \"e\"", data)
	}
}

func TestCacheGroupsIsolated(t *testing.T) {
	cache := NewCache(t.TempDir(), 5)
	ts := time.Date(2025, 8, 17, 0, 0, 0, 0, time.UTC)

	if err := cache.Write("starlink", []byte("s"), ts); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := cache.Write("oneweb", []byte("o"), ts); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, _, err := cache.LoadLatest("oneweb")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if string(data) != "o" {
		t.Errorf("oneweb data = %q", data)
	}

	if _, _, err := cache.LoadLatest("iridium"); err == nil {
		t.Error("expected error for group with no cached files")
	}
}

func TestCacheMissingDir(t *testing.T) {
	cache := NewCache(t.TempDir()+"/does-not-exist", 5)
	if _, _, err := cache.LoadLatest("starlink"); err == nil {
		t.Fatal("expected error for missing cache dir")
	}
}

func TestFetcherFetchGroup(t *testing.T) {
	const payload = "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("GROUP"); got != "starlink" {
			t.Errorf("GROUP = %q, want starlink", got)
		}
		if got := r.URL.Query().Get("FORMAT"); got != "tle" {
			t.Errorf("FORMAT = %q, want tle", got)
		}
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL)
	data, err := f.FetchGroup(context.Background(), "starlink")
	if err != nil {
		t.Fatalf("FetchGroup: %v", err)
	}
	if string(data) != payload {
		t.Errorf("payload mismatch: %q", data)
	}
}

func TestFetcherNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL)
	if _, err := f.FetchGroup(context.Background(), "starlink"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
