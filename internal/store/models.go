package store

import (
	"errors"
	"time"
)

// Sentinel errors returned by store operations.
var (
	ErrNotFound          = errors.New("not found")
	ErrVersionConflict   = errors.New("version conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// BookStatus tracks a book through the transcription lifecycle.
type BookStatus string

const (
	BookStatusUnprocessed BookStatus = "unprocessed"
	BookStatusProcessing  BookStatus = "processing"
	BookStatusInReview    BookStatus = "in_review"
	BookStatusCompleted   BookStatus = "completed"
)

// bookTransitions enumerates the legal status edges. The unprocessed to
// in_review edge covers the case where the last page finishes before the
// fan-out status write lands. completed regresses to in_review only when a
// reviewed page is redone.
var bookTransitions = map[BookStatus][]BookStatus{
	BookStatusUnprocessed: {BookStatusProcessing, BookStatusInReview},
	BookStatusProcessing:  {BookStatusInReview},
	BookStatusInReview:    {BookStatusCompleted},
	BookStatusCompleted:   {BookStatusInReview},
}

// CanTransitionTo reports whether the edge from s to next is legal.
func (s BookStatus) CanTransitionTo(next BookStatus) bool {
	for _, allowed := range bookTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OCRStatus tracks a page through the pipeline.
type OCRStatus string

const (
	OCRStatusProcessing OCRStatus = "processing"
	OCRStatusCompleted  OCRStatus = "completed"
	OCRStatusFailed     OCRStatus = "failed"
)

// PageFlag marks a page for reviewer attention.
type PageFlag string

const (
	FlagNeedsAdditionalReview PageFlag = "needs_additional_review"
	FlagEmpty                 PageFlag = "empty"
)

// Book is a scanned book registered for transcription.
type Book struct {
	ID            string     `json:"id"`
	PDFURL        string     `json:"pdfUrl"`
	TotalPages    int        `json:"totalPages"`
	Status        BookStatus `json:"status"`
	ReviewedPages int        `json:"reviewedPages"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Page is one page of a book with its transcription state.
// PDFPageNumber is the immutable 1-based position in the source PDF;
// PageNumber is the printed page number found by segmentation, if any.
type Page struct {
	ID            string     `json:"id"`
	BookID        string     `json:"bookId"`
	PDFPageNumber int        `json:"pdfPageNumber"`
	PageNumber    *int       `json:"pageNumber,omitempty"`
	OCRStatus     OCRStatus  `json:"ocrStatus"`
	Flags         []PageFlag `json:"flags"`
	Content       *string    `json:"content,omitempty"`
	Footnotes     *string    `json:"footnotes,omitempty"`
	TotalWords    int        `json:"totalWords"`
	Reviewed      bool       `json:"reviewed"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
	ReviewedBy    *string    `json:"reviewedBy,omitempty"`
	Version       int        `json:"version"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// HasFlag reports whether the page carries the given flag.
func (p *Page) HasFlag(flag PageFlag) bool {
	for _, f := range p.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
