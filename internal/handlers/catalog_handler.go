package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
)

type Catalog interface {
	CreateAuthor(ctx context.Context, actor models.Identity, in services.AuthorInput) (*models.Author, error)
	UpdateAuthor(ctx context.Context, actor models.Identity, id int64, in services.AuthorInput) (*models.Author, error)
	DeleteAuthor(ctx context.Context, actor models.Identity, id int64) error
	GetAuthor(ctx context.Context, id int64) (*models.Author, error)
	ListAuthors(ctx context.Context) ([]models.Author, error)
	CreateBook(ctx context.Context, actor models.Identity, in services.BookInput) (*models.Book, error)
	UpdateBook(ctx context.Context, actor models.Identity, id int64, in services.BookInput) (*models.Book, error)
	DeleteBook(ctx context.Context, actor models.Identity, id int64) error
	ListBooks(ctx context.Context, filter services.BookQuery) ([]models.Book, error)
	Categories(ctx context.Context) ([]string, error)
	BookFor(ctx context.Context, actor models.Identity, id int64) (*services.BookView, error)
}

type CatalogHandler struct {
	catalog Catalog
}

func NewCatalogHandler(catalog Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListBooks searches the catalog by title, author, isbn or category
// @Summary List books
// @Tags Catalog
// @Produce json
// @Param q query string false "Search text"
// @Param category query string false "Category"
// @Param sort query string false "title, author, -title or -author"
// @Success 200 {array} models.Book
// @Router /books [get]
func (h *CatalogHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	books, err := h.catalog.ListBooks(r.Context(), services.BookQuery{
		Search:   strings.TrimSpace(params.Get("q")),
		Category: strings.TrimSpace(params.Get("category")),
		Sort:     strings.TrimSpace(params.Get("sort")),
	})
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// Categories lists the categories in use
// @Summary List categories
// @Tags Catalog
// @Produce json
// @Success 200 {array} string
// @Router /categories [get]
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// GetBook returns a book with its lending status for the caller
// @Summary Get book
// @Tags Catalog
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} services.BookView
// @Failure 404 {object} services.ErrorResponse
// @Router /books/{id} [get]
func (h *CatalogHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	view, err := h.catalog.BookFor(r.Context(), actor(r), id)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CreateBook adds a book with all copies available
// @Summary Create book
// @Tags Catalog
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body services.BookInput true "Book"
// @Success 201 {object} models.Book
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /books [post]
func (h *CatalogHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var in services.BookInput
	if !decodeJSON(w, r, &in) {
		return
	}

	book, err := h.catalog.CreateBook(r.Context(), actor(r), in)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// UpdateBook edits a book; changing total copies shifts available copies by the same amount
// @Summary Update book
// @Tags Catalog
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Book ID"
// @Param request body services.BookInput true "Book"
// @Success 200 {object} models.Book
// @Router /books/{id} [put]
func (h *CatalogHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var in services.BookInput
	if !decodeJSON(w, r, &in) {
		return
	}

	book, err := h.catalog.UpdateBook(r.Context(), actor(r), id, in)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// DeleteBook removes a book and its requests
// @Summary Delete book
// @Tags Catalog
// @Security BearerAuth
// @Param id path int true "Book ID"
// @Success 204
// @Router /books/{id} [delete]
func (h *CatalogHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteBook(r.Context(), actor(r), id); err != nil {
		services.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary List authors
// @Tags Catalog
// @Produce json
// @Success 200 {array} models.Author
// @Router /authors [get]
func (h *CatalogHandler) ListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.catalog.ListAuthors(r.Context())
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authors)
}

// @Summary Get author
// @Tags Catalog
// @Produce json
// @Param id path int true "Author ID"
// @Success 200 {object} models.Author
// @Router /authors/{id} [get]
func (h *CatalogHandler) GetAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	author, err := h.catalog.GetAuthor(r.Context(), id)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, author)
}

// @Summary Create author
// @Tags Catalog
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body services.AuthorInput true "Author"
// @Success 201 {object} models.Author
// @Router /authors [post]
func (h *CatalogHandler) CreateAuthor(w http.ResponseWriter, r *http.Request) {
	var in services.AuthorInput
	if !decodeJSON(w, r, &in) {
		return
	}
	author, err := h.catalog.CreateAuthor(r.Context(), actor(r), in)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, author)
}

func (h *CatalogHandler) UpdateAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var in services.AuthorInput
	if !decodeJSON(w, r, &in) {
		return
	}
	author, err := h.catalog.UpdateAuthor(r.Context(), actor(r), id, in)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, author)
}

func (h *CatalogHandler) DeleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteAuthor(r.Context(), actor(r), id); err != nil {
		services.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
