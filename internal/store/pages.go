package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const pageColumns = `id, book_id, pdf_page_number, page_number, ocr_status, flags,
    content, footnotes, total_words, reviewed, reviewed_at, reviewed_by, version,
    created_at, updated_at`

// PageOCRUpdate carries the pipeline outcome persisted for a page.
type PageOCRUpdate struct {
	OCRStatus  OCRStatus
	Flags      []PageFlag
	Content    *string
	Footnotes  *string
	PageNumber *int
	TotalWords int
}

// UpsertPage writes the pipeline outcome for (bookID, pdfPageNumber). A
// duplicate page job updates the existing row instead of inserting a second
// one; the UNIQUE(book_id, pdf_page_number) index enforces this.
func (s *Store) UpsertPage(ctx context.Context, bookID string, pdfPageNumber int, upd PageOCRUpdate) (*Page, error) {
	flagsJSON, err := marshalFlags(upd.Flags)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	id := uuid.New().String()

	_, err = s.execWithRetry(ctx, `
        INSERT INTO pages (id, book_id, pdf_page_number, page_number, ocr_status, flags,
            content, footnotes, total_words, version, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
        ON CONFLICT (book_id, pdf_page_number) DO UPDATE SET
            page_number = excluded.page_number,
            ocr_status = excluded.ocr_status,
            flags = excluded.flags,
            content = excluded.content,
            footnotes = excluded.footnotes,
            total_words = excluded.total_words,
            version = pages.version + 1,
            updated_at = excluded.updated_at`,
		id, bookID, pdfPageNumber, nullableInt(upd.PageNumber), upd.OCRStatus, flagsJSON,
		nullableString(upd.Content), nullableString(upd.Footnotes), upd.TotalWords, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert page: %w", err)
	}

	return s.GetPageByNumber(ctx, bookID, pdfPageNumber)
}

// GetPage returns the page by id, or ErrNotFound.
func (s *Store) GetPage(ctx context.Context, id string) (*Page, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+pageColumns+` FROM pages WHERE id = ?`, id)
	return scanPage(row)
}

// GetPageByNumber returns the page at the 1-based PDF position.
func (s *Store) GetPageByNumber(ctx context.Context, bookID string, pdfPageNumber int) (*Page, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+pageColumns+` FROM pages WHERE book_id = ? AND pdf_page_number = ?`,
		bookID, pdfPageNumber)
	return scanPage(row)
}

// ListPages returns all pages of a book ordered by PDF position.
func (s *Store) ListPages(ctx context.Context, bookID string) ([]*Page, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+pageColumns+` FROM pages WHERE book_id = ? ORDER BY pdf_page_number`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []*Page
	for rows.Next() {
		p, err := scanPageRows(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// CountPages returns the number of stored pages for a book.
func (s *Store) CountPages(ctx context.Context, bookID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM pages WHERE book_id = ?`, bookID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

// UpdatePageOCR overwrites the OCR-derived fields of an existing page using
// compare-and-swap on version. Returns ErrVersionConflict when another
// writer got there first.
func (s *Store) UpdatePageOCR(ctx context.Context, pageID string, version int, upd PageOCRUpdate) (*Page, error) {
	flagsJSON, err := marshalFlags(upd.Flags)
	if err != nil {
		return nil, err
	}

	res, err := s.execWithRetry(ctx, `
        UPDATE pages SET
            page_number = ?,
            ocr_status = ?,
            flags = ?,
            content = ?,
            footnotes = ?,
            total_words = ?,
            version = version + 1,
            updated_at = ?
        WHERE id = ? AND version = ?`,
		nullableInt(upd.PageNumber), upd.OCRStatus, flagsJSON,
		nullableString(upd.Content), nullableString(upd.Footnotes), upd.TotalWords,
		time.Now().UTC().Format(time.RFC3339Nano),
		pageID, version)
	if err != nil {
		return nil, fmt.Errorf("update page: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, gerr := s.GetPage(ctx, pageID); gerr != nil {
			return nil, gerr
		}
		return nil, ErrVersionConflict
	}

	return s.GetPage(ctx, pageID)
}

// ResetPageForRedo clears a page's OCR-derived fields ahead of a redo run.
// If the page was reviewed, the book's reviewed counter is decremented and a
// completed book regresses to in_review. The write is versioned; a
// concurrent writer surfaces as ErrVersionConflict.
func (s *Store) ResetPageForRedo(ctx context.Context, pageID string) (*Page, error) {
	ctx = ensureContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	page, err := scanPage(tx.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE id = ?`, pageID))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := tx.ExecContext(ctx, `
        UPDATE pages SET
            page_number = NULL,
            ocr_status = ?,
            flags = '[]',
            content = NULL,
            footnotes = NULL,
            total_words = 0,
            reviewed = 0,
            reviewed_at = NULL,
            reviewed_by = NULL,
            version = version + 1,
            updated_at = ?
        WHERE id = ? AND version = ?`,
		OCRStatusProcessing, now, pageID, page.Version)
	if err != nil {
		return nil, fmt.Errorf("reset page: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrVersionConflict
	}

	if page.Reviewed {
		if _, err := tx.ExecContext(ctx, `
            UPDATE books SET reviewed_pages = MAX(reviewed_pages - 1, 0), updated_at = ?
            WHERE id = ?`, now, page.BookID); err != nil {
			return nil, fmt.Errorf("decrement reviewed pages: %w", err)
		}
	}

	// Redoing a page of a reviewed book reopens it.
	if _, err := tx.ExecContext(ctx, `
        UPDATE books SET status = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		BookStatusInReview, now, page.BookID, BookStatusCompleted); err != nil {
		return nil, fmt.Errorf("reopen book: %w", err)
	}

	updated, err := scanPage(tx.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE id = ?`, pageID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// MarkPageReviewed records a reviewer sign-off and bumps the book counter.
func (s *Store) MarkPageReviewed(ctx context.Context, pageID, reviewer string) error {
	ctx = ensureContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	page, err := scanPage(tx.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE id = ?`, pageID))
	if err != nil {
		return err
	}
	if page.Reviewed {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
        UPDATE pages SET reviewed = 1, reviewed_at = ?, reviewed_by = ?, version = version + 1, updated_at = ?
        WHERE id = ?`, now, reviewer, now, pageID); err != nil {
		return fmt.Errorf("mark reviewed: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
        UPDATE books SET reviewed_pages = reviewed_pages + 1, updated_at = ?
        WHERE id = ?`, now, page.BookID); err != nil {
		return fmt.Errorf("increment reviewed pages: %w", err)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row *sql.Row) (*Page, error) {
	p, err := scanPageFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func scanPageRows(rows *sql.Rows) (*Page, error) {
	return scanPageFrom(rows)
}

func scanPageFrom(row rowScanner) (*Page, error) {
	var (
		p                    Page
		pageNumber           sql.NullInt64
		flagsJSON            string
		content, footnotes   sql.NullString
		reviewedAt           sql.NullString
		reviewedBy           sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &p.BookID, &p.PDFPageNumber, &pageNumber, &p.OCRStatus, &flagsJSON,
		&content, &footnotes, &p.TotalWords, &p.Reviewed, &reviewedAt, &reviewedBy, &p.Version,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if pageNumber.Valid {
		n := int(pageNumber.Int64)
		p.PageNumber = &n
	}
	if content.Valid {
		p.Content = &content.String
	}
	if footnotes.Valid {
		p.Footnotes = &footnotes.String
	}
	if reviewedBy.Valid {
		p.ReviewedBy = &reviewedBy.String
	}
	if reviewedAt.Valid {
		t, perr := parseTimestamp(reviewedAt.String)
		if perr != nil {
			return nil, perr
		}
		p.ReviewedAt = &t
	}
	if err := json.Unmarshal([]byte(flagsJSON), &p.Flags); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if p.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}

	return &p, nil
}

func marshalFlags(flags []PageFlag) (string, error) {
	if len(flags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(flags)
	if err != nil {
		return "", fmt.Errorf("marshal flags: %w", err)
	}
	return string(b), nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
