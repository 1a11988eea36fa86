package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-library/internal/service"
)

// BookHandler serves the catalog.
type BookHandler struct {
	books   *service.BookService
	maxBody int64
	logger  zerolog.Logger
}

// BookRequest is the body of book create and update requests.
type BookRequest struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Category    string `json:"category"`
	ISBN        string `json:"isbn"`
	TotalCopies int    `json:"total_copies"`
}

// CopiesRequest is the body of PUT /books/{id}/copies.
type CopiesRequest struct {
	TotalCopies int `json:"total_copies"`
}

// ActiveRequest is the body of the activate/deactivate routes.
type ActiveRequest struct {
	Active bool `json:"active"`
}

// List handles GET /books?q=&available=&include_inactive=.
// Only librarians see withdrawn books.
func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	available, err := queryBool(r, "available")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	includeInactive, err := queryBool(r, "include_inactive")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if !callerIsLibrarian(r) {
		includeInactive = false
	}

	books, err := h.books.SearchBooks(r.Context(), service.SearchBooksInput{
		Query:           r.URL.Query().Get("q"),
		IncludeInactive: includeInactive,
		AvailableOnly:   available,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, books)
}

// Get handles GET /books/{id}.
func (h *BookHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	book, err := h.books.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// Create handles POST /books.
func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	book, err := h.books.CreateBook(r.Context(), service.CreateBookInput{
		Title:       req.Title,
		Author:      req.Author,
		Category:    req.Category,
		ISBN:        req.ISBN,
		TotalCopies: req.TotalCopies,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, book)
}

// Update handles PUT /books/{id}. Copy counts in the body are ignored.
func (h *BookHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req BookRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	book, err := h.books.UpdateBook(r.Context(), service.UpdateBookInput{
		ID:       id,
		Title:    req.Title,
		Author:   req.Author,
		Category: req.Category,
		ISBN:     req.ISBN,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// SetCopies handles PUT /books/{id}/copies.
func (h *BookHandler) SetCopies(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req CopiesRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	book, err := h.books.SetTotalCopies(r.Context(), id, req.TotalCopies)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// SetActive handles PUT /books/{id}/active.
func (h *BookHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req ActiveRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.books.SetActive(r.Context(), id, req.Active); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	book, err := h.books.GetBook(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}
