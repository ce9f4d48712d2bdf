package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const bookColumns = "id, pdf_url, total_pages, status, reviewed_pages, created_at, updated_at"

// CreateBook registers a new book in the unprocessed state.
func (s *Store) CreateBook(ctx context.Context, pdfURL string) (*Book, error) {
	if pdfURL == "" {
		return nil, fmt.Errorf("pdf url is required")
	}

	now := time.Now().UTC()
	book := &Book{
		ID:        uuid.New().String(),
		PDFURL:    pdfURL,
		Status:    BookStatusUnprocessed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.execWithRetry(ctx, `
        INSERT INTO books (id, pdf_url, total_pages, status, reviewed_pages, created_at, updated_at)
        VALUES (?, ?, 0, ?, 0, ?, ?)`,
		book.ID, book.PDFURL, book.Status,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert book: %w", err)
	}

	return book, nil
}

// GetBook returns the book by id, or ErrNotFound.
func (s *Store) GetBook(ctx context.Context, id string) (*Book, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	return scanBook(row)
}

// SetBookProcessing records the fan-out result: total page count and the
// unprocessed to processing transition.
func (s *Store) SetBookProcessing(ctx context.Context, id string, totalPages int) error {
	res, err := s.execWithRetry(ctx, `
        UPDATE books SET status = ?, total_pages = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		BookStatusProcessing, totalPages, time.Now().UTC().Format(time.RFC3339Nano),
		id, BookStatusUnprocessed)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return s.checkTransition(ctx, res, id, BookStatusProcessing)
}

// MarkBookInReview transitions the book to in_review when its last page
// finishes. A book already in review is left unchanged so redelivered jobs
// stay idempotent.
func (s *Store) MarkBookInReview(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `
        UPDATE books SET status = ?, updated_at = ?
        WHERE id = ? AND status IN (?, ?)`,
		BookStatusInReview, time.Now().UTC().Format(time.RFC3339Nano),
		id, BookStatusUnprocessed, BookStatusProcessing)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	book, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}
	if book.Status == BookStatusInReview {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, book.Status, BookStatusInReview)
}

// CompleteBook transitions the book from in_review to completed.
func (s *Store) CompleteBook(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `
        UPDATE books SET status = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		BookStatusCompleted, time.Now().UTC().Format(time.RFC3339Nano),
		id, BookStatusInReview)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return s.checkTransition(ctx, res, id, BookStatusCompleted)
}

// checkTransition turns a zero-row UPDATE into ErrNotFound or
// ErrInvalidTransition depending on whether the book exists.
func (s *Store) checkTransition(ctx context.Context, res sql.Result, id string, to BookStatus) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	book, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, book.Status, to)
}

func scanBook(row *sql.Row) (*Book, error) {
	var (
		b                    Book
		createdAt, updatedAt string
	)
	err := row.Scan(&b.ID, &b.PDFURL, &b.TotalPages, &b.Status, &b.ReviewedPages, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan book: %w", err)
	}

	if b.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}
