package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/scriptorium/folio/internal/pipeline"
	"github.com/scriptorium/folio/internal/store"
)

type stubProcessor struct {
	result *pipeline.Result
	err    error
	calls  int
	pinned string
}

func (p *stubProcessor) ProcessPage(ctx context.Context, url string, pageIndex int, pinned string) (*pipeline.Result, error) {
	p.calls++
	p.pinned = pinned
	return p.result, p.err
}

func completeResult(body, footnotes string, pageNumber *int) *pipeline.Result {
	return &pipeline.Result{Segments: &pipeline.Segments{
		Body:       body,
		Footnotes:  footnotes,
		PageNumber: pageNumber,
	}}
}

func TestPageWorkerFullSuccess(t *testing.T) {
	s := mustOpenStore(t)
	ctx := context.Background()
	book := mustCreateBook(t, s)

	pn := 12
	w := NewPageWorker(s, &stubProcessor{
		result: completeResult("<p>hello world</p>", "<p>a note</p>", &pn),
	}, nil)

	job := PageJob{BookID: book.ID, PDFURL: book.PDFURL, PageIndex: 0}
	if err := w.Handle(ctx, mustPayload(t, job)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	page, err := s.GetPageByNumber(ctx, book.ID, 1)
	if err != nil {
		t.Fatalf("GetPageByNumber() error = %v", err)
	}
	if page.OCRStatus != store.OCRStatusCompleted {
		t.Errorf("status = %s, want completed", page.OCRStatus)
	}
	if page.Content == nil || *page.Content != "<p>hello world</p>" {
		t.Errorf("content = %v", page.Content)
	}
	if page.Footnotes == nil || *page.Footnotes != "<p>a note</p>" {
		t.Errorf("footnotes = %v", page.Footnotes)
	}
	if page.PageNumber == nil || *page.PageNumber != 12 {
		t.Errorf("page number = %v, want 12", page.PageNumber)
	}
	// "hello world" + "a note" with markup stripped.
	if page.TotalWords != 4 {
		t.Errorf("total words = %d, want 4", page.TotalWords)
	}
	if len(page.Flags) != 0 {
		t.Errorf("flags = %v, want none", page.Flags)
	}
}

func TestPageWorkerEmptyPage(t *testing.T) {
	s := mustOpenStore(t)
	ctx := context.Background()
	book := mustCreateBook(t, s)

	w := NewPageWorker(s, &stubProcessor{result: completeResult("", "", nil)}, nil)
	if err := w.Handle(ctx, mustPayload(t, PageJob{BookID: book.ID, PageIndex: 2})); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	page, err := s.GetPageByNumber(ctx, book.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if page.OCRStatus != store.OCRStatusCompleted {
		t.Errorf("status = %s, want completed", page.OCRStatus)
	}
	if !page.HasFlag(store.FlagEmpty) {
		t.Errorf("flags = %v, want empty flag", page.Flags)
	}
	if page.TotalWords != 0 {
		t.Errorf("total words = %d, want 0", page.TotalWords)
	}
}

func TestPageWorkerPartialFailure(t *testing.T) {
	s := mustOpenStore(t)
	ctx := context.Background()
	book := mustCreateBook(t, s)

	w := NewPageWorker(s, &stubProcessor{result: &pipeline.Result{
		PartialText: "corrected but unmarked text",
		FailedStage: pipeline.StageHTMLify,
	}}, nil)

	if err := w.Handle(ctx, mustPayload(t, PageJob{BookID: book.ID, PageIndex: 0})); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	page, err := s.GetPageByNumber(ctx, book.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if page.OCRStatus != store.OCRStatusFailed {
		t.Errorf("status = %s, want failed", page.OCRStatus)
	}
	if !page.HasFlag(store.FlagNeedsAdditionalReview) {
		t.Errorf("flags = %v, want needs_additional_review", page.Flags)
	}
	if page.Content == nil || *page.Content != "corrected but unmarked text" {
		t.Errorf("content = %v, want the partial text", page.Content)
	}
	if page.TotalWords != 4 {
		t.Errorf("total words = %d, want 4", page.TotalWords)
	}
	if page.PageNumber != nil {
		t.Errorf("page number = %v, want unset", page.PageNumber)
	}
}

func TestPageWorkerHardFailure(t *testing.T) {
	s := mustOpenStore(t)
	ctx := context.Background()
	book := mustCreateBook(t, s)

	w := NewPageWorker(s, &stubProcessor{err: errors.New("connection refused")}, nil)

	err := w.Handle(ctx, mustPayload(t, PageJob{BookID: book.ID, PageIndex: 0, IsLast: true}))
	if err == nil {
		t.Fatal("hard failure must propagate for redelivery")
	}

	page, gerr := s.GetPageByNumber(ctx, book.ID, 1)
	if gerr != nil {
		t.Fatal(gerr)
	}
	if page.OCRStatus != store.OCRStatusFailed {
		t.Errorf("status = %s, want failed", page.OCRStatus)
	}
	if page.Content != nil || page.TotalWords != 0 {
		t.Errorf("fields not cleared: %+v", page)
	}

	// The failed last page must not move the book to in_review.
	gotBook, _ := s.GetBook(ctx, book.ID)
	if gotBook.Status == store.BookStatusInReview {
		t.Error("book moved to in_review on a failed last page")
	}
}

func TestPageWorkerLastPageMarksInReview(t *testing.T) {
	s := mustOpenStore(t)
	ctx := context.Background()
	book := mustCreateBook(t, s)
	if err := s.SetBookProcessing(ctx, book.ID, 1); err != nil {
		t.Fatal(err)
	}

	w := NewPageWorker(s, &stubProcessor{result: completeResult("<p>done</p>", "", nil)}, nil)
	if err := w.Handle(ctx, mustPayload(t, PageJob{BookID: book.ID, PageIndex: 0, IsLast: true})); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	gotBook, _ := s.GetBook(ctx, book.ID)
	if gotBook.Status != store.BookStatusInReview {
		t.Errorf("book status = %s, want in_review", gotBook.Status)
	}
}

func TestPageWorkerRedoUpdatesInPlace(t *testing.T) {
	s := mustOpenStore(t)
	ctx := context.Background()
	book := mustCreateBook(t, s)

	seeded, err := s.UpsertPage(ctx, book.ID, 1, store.PageOCRUpdate{
		OCRStatus:  store.OCRStatusCompleted,
		Content:    strptr("<p>old</p>"),
		TotalWords: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	reset, err := s.ResetPageForRedo(ctx, seeded.ID)
	if err != nil {
		t.Fatal(err)
	}

	proc := &stubProcessor{result: completeResult("<p>new text</p>", "", nil)}
	w := NewPageWorker(s, proc, nil)

	job := PageJob{
		BookID:    book.ID,
		PDFURL:    book.PDFURL,
		PageIndex: 0,
		IsRedo:    true,
		PageID:    reset.ID,
		Provider:  "openai",
	}
	if err := w.Handle(ctx, mustPayload(t, job)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if proc.pinned != "openai" {
		t.Errorf("pinned provider = %q, want openai", proc.pinned)
	}

	page, err := s.GetPage(ctx, reset.ID)
	if err != nil {
		t.Fatal(err)
	}
	if page.Content == nil || *page.Content != "<p>new text</p>" {
		t.Errorf("content = %v, want new text", page.Content)
	}

	count, _ := s.CountPages(ctx, book.ID)
	if count != 1 {
		t.Errorf("page count after redo = %d, want 1", count)
	}
}

func strptr(s string) *string { return &s }
