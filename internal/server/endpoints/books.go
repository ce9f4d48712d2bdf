package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/scriptorium/folio/internal/api"
	"github.com/scriptorium/folio/internal/store"
	"github.com/scriptorium/folio/internal/svcctx"
)

// CreateBookRequest registers a scanned book by its PDF location.
type CreateBookRequest struct {
	PDFURL string `json:"pdfUrl"`
}

// CreateBookEndpoint handles POST /book.
type CreateBookEndpoint struct{}

func (e *CreateBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/book", e.handler
}

func (e *CreateBookEndpoint) RequiresInit() bool { return true }

func (e *CreateBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PDFURL == "" {
		writeError(w, http.StatusBadRequest, "pdfUrl is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	book, err := st.CreateBook(r.Context(), req.PDFURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (e *CreateBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "register <pdfUrl>",
		Short: "Register a scanned book for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var book store.Book
			if err := client.Post(cmd.Context(), "/book", CreateBookRequest{PDFURL: args[0]}, &book); err != nil {
				return err
			}
			return api.Output(book)
		},
	}
}

// BookDetail is a book with its pages.
type BookDetail struct {
	store.Book
	Pages []*store.Page `json:"pages"`
}

// GetBookEndpoint handles GET /book/{bookId}.
type GetBookEndpoint struct{}

func (e *GetBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/book/{bookId}", e.handler
}

func (e *GetBookEndpoint) RequiresInit() bool { return true }

func (e *GetBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())

	book, err := st.GetBook(r.Context(), r.PathValue("bookId"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	pages, err := st.ListPages(r.Context(), book.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, BookDetail{Book: *book, Pages: pages})
}

func (e *GetBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <bookId>",
		Short: "Get a book and its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var detail BookDetail
			if err := client.Get(cmd.Context(), "/book/"+args[0], &detail); err != nil {
				return err
			}
			return api.Output(detail)
		},
	}
}

// BookOCRRequest starts transcription of a registered book.
type BookOCRRequest struct {
	BookID string `json:"bookId"`
}

// BookOCREndpoint handles POST /book/ocr: validate the book is untouched
// and enqueue the fan-out job.
type BookOCREndpoint struct{}

func (e *BookOCREndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/book/ocr", e.handler
}

func (e *BookOCREndpoint) RequiresInit() bool { return true }

func (e *BookOCREndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req BookOCRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BookID == "" {
		writeError(w, http.StatusBadRequest, "bookId is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	book, err := st.GetBook(r.Context(), req.BookID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if book.Status != store.BookStatusUnprocessed {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("book already processed (status %s)", book.Status))
		return
	}

	if err := svcctx.JobManagerFrom(r.Context()).SubmitBook(r.Context(), book.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, OkResponse{OK: true})
}

func (e *BookOCREndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ocr <bookId>",
		Short: "Start transcription of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp OkResponse
			if err := client.Post(cmd.Context(), "/book/ocr", BookOCRRequest{BookID: args[0]}, &resp); err != nil {
				return err
			}
			fmt.Println("transcription started")
			return nil
		},
	}
}
