package pdf

import "github.com/scriptorium/folio/internal/cache"

// BookMeta is the cached PDF metadata for a book, keyed by book ID. It lets
// the page-image endpoint resolve a book to its source PDF without a store
// round trip.
type BookMeta struct {
	PDFURL     string
	TotalPages int
}

// MetaCache maps book IDs to their PDF metadata. Entries never expire; the
// cache is bounded by size only.
type MetaCache struct {
	arena cache.Arena[string, BookMeta]
}

// NewMetaCache creates a cache holding up to size entries.
func NewMetaCache(size int) *MetaCache {
	if size <= 0 {
		size = 1000
	}
	return &MetaCache{arena: cache.NewLRU[string, BookMeta](size)}
}

// Get returns the metadata for bookID.
func (m *MetaCache) Get(bookID string) (BookMeta, bool) {
	return m.arena.Get(bookID)
}

// Set stores the metadata for bookID.
func (m *MetaCache) Set(bookID string, meta BookMeta) {
	m.arena.Set(bookID, meta)
}

// Len returns the number of cached entries.
func (m *MetaCache) Len() int {
	return m.arena.Len()
}
