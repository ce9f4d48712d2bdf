package pdf

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestDownloadRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "%PDF-1.4 fake body")
	}))
	defer srv.Close()

	e := NewExtractor(ExtractorConfig{})
	data, err := e.download(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("download() error = %v", err)
	}
	if len(data) == 0 {
		t.Error("download() returned empty body")
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hit %d times, want 2 (one retry)", got)
	}
}

func TestDownloadDoesNotRetryNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewExtractor(ExtractorConfig{})
	if _, err := e.download(context.Background(), srv.URL); err == nil {
		t.Fatal("download() error = nil, want error for 404")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1 (no retry on 404)", got)
	}
}

func TestGetDocumentCachesFetch(t *testing.T) {
	// Stub out fetching and parsing cost by pre-seeding the cache; a second
	// lookup must not call fetch.
	e := NewExtractor(ExtractorConfig{})
	fetches := 0
	e.fetch = func(ctx context.Context, url string) ([]byte, error) {
		fetches++
		return nil, fmt.Errorf("fetch should not be called for cached documents")
	}
	e.docs.Set("http://example.com/book.pdf", &document{data: []byte("x"), pageCount: 7})

	doc, err := e.getDocument(context.Background(), "http://example.com/book.pdf")
	if err != nil {
		t.Fatalf("getDocument() error = %v", err)
	}
	if doc.pageCount != 7 {
		t.Errorf("pageCount = %d, want 7", doc.pageCount)
	}
	if fetches != 0 {
		t.Errorf("fetch called %d times, want 0", fetches)
	}

	if _, err := e.PageCount(context.Background(), "http://example.com/book.pdf"); err != nil {
		t.Errorf("PageCount() on cached document error = %v", err)
	}
}

func TestSinglePageOutOfRange(t *testing.T) {
	e := NewExtractor(ExtractorConfig{})
	e.docs.Set("u", &document{data: []byte("x"), pageCount: 3})

	if _, err := e.SinglePage(context.Background(), "u", 3); err == nil {
		t.Error("SinglePage(index=3) on 3-page doc should error")
	}
	if _, err := e.SinglePage(context.Background(), "u", -1); err == nil {
		t.Error("SinglePage(index=-1) should error")
	}
}

func TestMetaCache(t *testing.T) {
	mc := NewMetaCache(2)

	mc.Set("book-1", BookMeta{PDFURL: "http://x/1.pdf", TotalPages: 10})
	meta, ok := mc.Get("book-1")
	if !ok {
		t.Fatal("Get() miss for stored entry")
	}
	if meta.TotalPages != 10 || meta.PDFURL != "http://x/1.pdf" {
		t.Errorf("got %+v", meta)
	}

	// Size bound evicts the oldest entry.
	mc.Set("book-2", BookMeta{TotalPages: 2})
	mc.Set("book-3", BookMeta{TotalPages: 3})
	if _, ok := mc.Get("book-1"); ok {
		t.Error("oldest entry survived past cache capacity")
	}
	if mc.Len() != 2 {
		t.Errorf("Len() = %d, want 2", mc.Len())
	}
}
