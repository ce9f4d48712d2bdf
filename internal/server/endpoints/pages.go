package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/scriptorium/folio/internal/api"
	"github.com/scriptorium/folio/internal/jobs"
	"github.com/scriptorium/folio/internal/pdf"
	"github.com/scriptorium/folio/internal/store"
	"github.com/scriptorium/folio/internal/svcctx"
)

// PageRedoEndpoint handles POST /page/{pageId}/ocr: reset the page's OCR
// fields and enqueue an expedited redo. An optional ?provider= pins every
// stage of the rerun to a single provider.
type PageRedoEndpoint struct{}

func (e *PageRedoEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/page/{pageId}/ocr", e.handler
}

func (e *PageRedoEndpoint) RequiresInit() bool { return true }

func (e *PageRedoEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	pageID := r.PathValue("pageId")
	st := svcctx.StoreFrom(r.Context())

	provider := r.URL.Query().Get("provider")
	if provider != "" {
		if registry := svcctx.RegistryFrom(r.Context()); registry != nil && !registry.HasLLM(provider) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown provider %q", provider))
			return
		}
	}

	page, err := st.GetPage(r.Context(), pageID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	book, err := st.GetBook(r.Context(), page.BookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	reset, err := st.ResetPageForRedo(r.Context(), page.ID)
	if errors.Is(err, store.ErrVersionConflict) {
		writeError(w, http.StatusConflict, "page is being modified, try again")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	err = svcctx.JobManagerFrom(r.Context()).SubmitRedo(r.Context(), jobs.PageJob{
		BookID:    book.ID,
		PDFURL:    book.PDFURL,
		PageIndex: reset.PDFPageNumber - 1,
		PageID:    reset.ID,
		Provider:  provider,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, OkResponse{OK: true})
}

func (e *PageRedoEndpoint) Command(getServerURL func() string) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "redo <pageId>",
		Short: "Re-run transcription of a single page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/page/" + args[0] + "/ocr"
			if provider != "" {
				path += "?provider=" + provider
			}
			var resp OkResponse
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			fmt.Println("redo queued")
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "pin the rerun to one provider")
	return cmd
}

// PageImageEndpoint handles GET /book/{bookId}/{pageNumber}: render the page
// at the 1-based PDF position as a PNG. Book metadata is served from an
// in-process cache so repeated page views skip the database and the PDF
// header fetch.
type PageImageEndpoint struct{}

func (e *PageImageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/book/{bookId}/{pageNumber}", e.handler
}

func (e *PageImageEndpoint) RequiresInit() bool { return true }

func (e *PageImageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("bookId")
	pageNumber, err := strconv.Atoi(r.PathValue("pageNumber"))
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid page number")
		return
	}

	meta, err := bookMeta(r, bookID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if pageNumber < 1 || pageNumber > meta.TotalPages {
		writeError(w, http.StatusNotFound, "page out of range")
		return
	}

	image, err := svcctx.ExtractorFrom(r.Context()).RenderImage(r.Context(), meta.PDFURL, pageNumber-1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}

// bookMeta resolves the PDF URL and page count for a book, preferring the
// in-process cache.
func bookMeta(r *http.Request, bookID string) (pdf.BookMeta, error) {
	cache := svcctx.BookMetaFrom(r.Context())
	if meta, ok := cache.Get(bookID); ok {
		return meta, nil
	}

	book, err := svcctx.StoreFrom(r.Context()).GetBook(r.Context(), bookID)
	if err != nil {
		return pdf.BookMeta{}, err
	}

	total := book.TotalPages
	if total == 0 {
		// Not fanned out yet; ask the PDF itself.
		total, err = svcctx.ExtractorFrom(r.Context()).PageCount(r.Context(), book.PDFURL)
		if err != nil {
			return pdf.BookMeta{}, err
		}
	}

	meta := pdf.BookMeta{PDFURL: book.PDFURL, TotalPages: total}
	cache.Set(bookID, meta)
	return meta, nil
}

func (e *PageImageEndpoint) Command(getServerURL func() string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "image <bookId> <pageNumber>",
		Short: "Download the rendered PNG of one page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			data, err := client.GetRaw(cmd.Context(), "/book/"+args[0]+"/"+args[1])
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("page-%s.png", args[1])
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default page-<n>.png)")
	return cmd
}

// PagePDFEndpoint handles GET /book/{bookId}/{pageNumber}/pdf: a standalone
// one-page PDF cut from the original, for reviewers who want the source page
// rather than the rendered image.
type PagePDFEndpoint struct{}

func (e *PagePDFEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/book/{bookId}/{pageNumber}/pdf", e.handler
}

func (e *PagePDFEndpoint) RequiresInit() bool { return true }

func (e *PagePDFEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("bookId")
	pageNumber, err := strconv.Atoi(r.PathValue("pageNumber"))
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid page number")
		return
	}

	meta, err := bookMeta(r, bookID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if pageNumber < 1 || pageNumber > meta.TotalPages {
		writeError(w, http.StatusNotFound, "page out of range")
		return
	}

	data, err := svcctx.ExtractorFrom(r.Context()).SinglePage(r.Context(), meta.PDFURL, pageNumber-1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (e *PagePDFEndpoint) Command(getServerURL func() string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pdf <bookId> <pageNumber>",
		Short: "Download one page as a standalone PDF",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			data, err := client.GetRaw(cmd.Context(), "/book/"+args[0]+"/"+args[1]+"/pdf")
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("page-%s.pdf", args[1])
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file (default page-<n>.pdf)")
	return cmd
}
