// Package jobs wires the durable queues to the transcription pipeline: the
// book fan-out handler, the per-page worker, and the manager that owns the
// consumers.
package jobs

// BookJob fans a registered book out into one PageJob per PDF page.
type BookJob struct {
	BookID string `json:"bookId"`
}

// PageJob processes one page of a book through the pipeline.
//
// PageIndex is the 0-based position in the PDF. IsLast marks the final page
// of a fan-out; finishing it moves the book to in_review. Redo jobs carry
// the existing page id and update that row in place, optionally pinned to a
// single provider.
type PageJob struct {
	BookID    string `json:"bookId"`
	PDFURL    string `json:"pdfUrl"`
	PageIndex int    `json:"pageIndex"`
	IsLast    bool   `json:"isLast"`
	IsRedo    bool   `json:"isRedo,omitempty"`
	PageID    string `json:"pageId,omitempty"`
	Provider  string `json:"provider,omitempty"`
}
