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

// ReviewPageRequest records who signed off on a page.
type ReviewPageRequest struct {
	ReviewedBy string `json:"reviewedBy"`
}

// ReviewPageEndpoint handles POST /page/{pageId}/review: the review
// collaborator's sign-off on one page.
type ReviewPageEndpoint struct{}

func (e *ReviewPageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/page/{pageId}/review", e.handler
}

func (e *ReviewPageEndpoint) RequiresInit() bool { return true }

func (e *ReviewPageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ReviewPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ReviewedBy == "" {
		writeError(w, http.StatusBadRequest, "reviewedBy is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	err := st.MarkPageReviewed(r.Context(), r.PathValue("pageId"), req.ReviewedBy)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, OkResponse{OK: true})
}

func (e *ReviewPageEndpoint) Command(getServerURL func() string) *cobra.Command {
	var reviewer string
	cmd := &cobra.Command{
		Use:   "review <pageId>",
		Short: "Mark a page as reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp OkResponse
			err := client.Post(cmd.Context(), "/page/"+args[0]+"/review",
				ReviewPageRequest{ReviewedBy: reviewer}, &resp)
			if err != nil {
				return err
			}
			fmt.Println("page reviewed")
			return nil
		},
	}
	cmd.Flags().StringVar(&reviewer, "by", "", "reviewer identity")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

// CompleteBookEndpoint handles POST /book/{bookId}/complete: the review
// collaborator closing out a fully reviewed book.
type CompleteBookEndpoint struct{}

func (e *CompleteBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/book/{bookId}/complete", e.handler
}

func (e *CompleteBookEndpoint) RequiresInit() bool { return true }

func (e *CompleteBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	err := st.CompleteBook(r.Context(), r.PathValue("bookId"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if errors.Is(err, store.ErrInvalidTransition) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, OkResponse{OK: true})
}

func (e *CompleteBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <bookId>",
		Short: "Mark an in-review book as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp OkResponse
			if err := client.Post(cmd.Context(), "/book/"+args[0]+"/complete", nil, &resp); err != nil {
				return err
			}
			fmt.Println("book completed")
			return nil
		},
	}
}
