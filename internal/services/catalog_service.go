package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/libraryhub/backend/internal/models"
	"go.uber.org/zap"
)

type CatalogService struct {
	db        *sql.DB
	auth      Authorizer
	validator *ValidationHelper
	logger    *zap.Logger
	now       func() time.Time
}

// AuthorInput is the payload for creating or updating an author
type AuthorInput struct {
	Name      string     `json:"name" validate:"required,max=200"`
	Bio       string     `json:"bio"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
}

// BookInput is the payload for creating or updating a book
type BookInput struct {
	Title           string `json:"title" validate:"required,max=200"`
	AuthorID        int64  `json:"author_id" validate:"required,gt=0"`
	ISBN            string `json:"isbn" validate:"required,max=13"`
	Publisher       string `json:"publisher" validate:"max=200"`
	PublicationYear *int   `json:"publication_year,omitempty" validate:"omitempty,gte=0,lte=9999"`
	Category        string `json:"category" validate:"max=100"`
	Description     string `json:"description"`
	TotalCopies     int    `json:"total_copies" validate:"required,gte=1"`
}

// BookView is a book plus its status for the caller
type BookView struct {
	models.Book
	Status models.BookStatus `json:"status"`
}

func NewCatalogService(db *sql.DB, auth Authorizer, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		db:        db,
		auth:      auth,
		validator: NewValidationHelper(),
		logger:    logger.Named("catalog"),
		now:       time.Now,
	}
}

func (s *CatalogService) CreateAuthor(ctx context.Context, actor models.Identity, in AuthorInput) (*models.Author, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.validateInput(&in); err != nil {
		return nil, err
	}

	now := s.now()
	row := s.db.QueryRowContext(ctx,
		"INSERT INTO authors (name, bio, birth_date, created_at, updated_at) VALUES ($1, $2, $3, $4, $4) RETURNING "+authorColumns,
		strings.TrimSpace(in.Name), in.Bio, in.BirthDate, now)
	author, err := scanAuthor(row)
	if err != nil {
		return nil, fmt.Errorf("create author: %w", err)
	}

	s.logger.Info("author created", zap.Int64("author_id", author.ID), zap.Stringer("actor", actor))
	return author, nil
}

func (s *CatalogService) UpdateAuthor(ctx context.Context, actor models.Identity, id int64, in AuthorInput) (*models.Author, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.validateInput(&in); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"UPDATE authors SET name = $1, bio = $2, birth_date = $3, updated_at = $4 WHERE id = $5 RETURNING "+authorColumns,
		strings.TrimSpace(in.Name), in.Bio, in.BirthDate, s.now(), id)
	author, err := scanAuthor(row)
	if err != nil {
		return nil, notFound(err, ErrAuthorNotFound, "update author")
	}
	return author, nil
}

// DeleteAuthor removes the author; books and their loans go with it
func (s *CatalogService) DeleteAuthor(ctx context.Context, actor models.Identity, id int64) error {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return err
	}
	return s.deleteByID(ctx, "DELETE FROM authors WHERE id = $1", id, ErrAuthorNotFound)
}

func (s *CatalogService) GetAuthor(ctx context.Context, id int64) (*models.Author, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+authorColumns+" FROM authors WHERE id = $1", id)
	author, err := scanAuthor(row)
	if err != nil {
		return nil, notFound(err, ErrAuthorNotFound, "get author")
	}
	return author, nil
}

func (s *CatalogService) ListAuthors(ctx context.Context) ([]models.Author, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+authorColumns+" FROM authors ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	return collect(rows, scanAuthor)
}

// CreateBook adds a title with every copy on the shelf
func (s *CatalogService) CreateBook(ctx context.Context, actor models.Identity, in BookInput) (*models.Book, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.validateInput(&in); err != nil {
		return nil, err
	}

	now := s.now()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO books (title, author_id, isbn, publisher, publication_year, category, description, total_copies, available_copies, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, $9) RETURNING `+bookColumns,
		strings.TrimSpace(in.Title), in.AuthorID, strings.TrimSpace(in.ISBN), in.Publisher, in.PublicationYear,
		in.Category, in.Description, in.TotalCopies, now)
	book, err := scanBook(row)
	if err != nil {
		return nil, s.bookWriteError(err, "create book")
	}

	s.logger.Info("book created", zap.Int64("book_id", book.ID), zap.String("isbn", book.ISBN), zap.Stringer("actor", actor))
	return book, nil
}

// UpdateBook rewrites the book. A change to total_copies moves
// available_copies by the same delta.
func (s *CatalogService) UpdateBook(ctx context.Context, actor models.Identity, id int64, in BookInput) (*models.Book, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.validateInput(&in); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	current, err := lockBook(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	available := current.AvailableCopies + (in.TotalCopies - current.TotalCopies)
	if available < 0 {
		return nil, ValidationError("total_copies", fmt.Sprintf("%d copies are on loan", current.TotalCopies-current.AvailableCopies))
	}

	row := tx.QueryRowContext(ctx,
		`UPDATE books SET title = $1, author_id = $2, isbn = $3, publisher = $4, publication_year = $5, category = $6,
		description = $7, total_copies = $8, available_copies = $9, updated_at = $10 WHERE id = $11 RETURNING `+bookColumns,
		strings.TrimSpace(in.Title), in.AuthorID, strings.TrimSpace(in.ISBN), in.Publisher, in.PublicationYear,
		in.Category, in.Description, in.TotalCopies, available, s.now(), id)
	book, err := scanBook(row)
	if err != nil {
		return nil, s.bookWriteError(err, "update book")
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return book, nil
}

var errDuplicateISBN = ValidationError("isbn", "a book with this ISBN already exists")

func (s *CatalogService) bookWriteError(err error, op string) error {
	if isUniqueViolation(err, "") {
		return errDuplicateISBN
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return ValidationError("author_id", "author does not exist")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// DeleteBook removes the book along with its loans and their fines
func (s *CatalogService) DeleteBook(ctx context.Context, actor models.Identity, id int64) error {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return err
	}
	return s.deleteByID(ctx, "DELETE FROM books WHERE id = $1", id, ErrBookNotFound)
}

func (s *CatalogService) deleteByID(ctx context.Context, query string, id int64, missing *Error) error {
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return missing
	}
	return nil
}

func (s *CatalogService) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id = $1", id)
	book, err := scanBook(row)
	if err != nil {
		return nil, notFound(err, ErrBookNotFound, "get book")
	}
	return book, nil
}

// BookQuery narrows and orders the catalog listing
type BookQuery struct {
	// Search matches title, author name, category or isbn
	Search   string
	Category string
	// Sort is one of title, author, -title, -author; anything else sorts by title
	Sort string
}

var bookSortOrders = map[string]string{
	"title":   "b.title, b.id",
	"author":  "a.name, b.title, b.id",
	"-title":  "b.title DESC, b.id",
	"-author": "a.name DESC, b.title, b.id",
}

// ListBooks returns the catalog filtered and sorted by filter
func (s *CatalogService) ListBooks(ctx context.Context, filter BookQuery) ([]models.Book, error) {
	var (
		conds []string
		args  []any
	)
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(b.title ILIKE $%d OR a.name ILIKE $%d OR b.category ILIKE $%d OR b.isbn ILIKE $%d)", n, n, n, n))
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		args = append(args, "%"+category+"%")
		conds = append(conds, fmt.Sprintf("b.category ILIKE $%d", len(args)))
	}

	query := "SELECT " + qualify(bookColumns, "b") + " FROM books b JOIN authors a ON a.id = b.author_id"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	order, ok := bookSortOrders[strings.TrimSpace(filter.Sort)]
	if !ok {
		order = bookSortOrders["title"]
	}
	query += " ORDER BY " + order

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return collect(rows, scanBook)
}

// Categories lists the distinct non-empty book categories
func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT category FROM books WHERE category <> '' ORDER BY category")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// BookFor returns the book with the status the actor sees. Only students
// get a lending status; everyone else sees none.
func (s *CatalogService) BookFor(ctx context.Context, actor models.Identity, id int64) (*BookView, error) {
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStudent() {
		return &BookView{Book: *book, Status: models.BookStatusNone}, nil
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+loanColumns+" FROM issue_requests WHERE student_id = $1 AND book_id = $2 AND status IN ('requested', 'issued', 'overdue') ORDER BY request_date DESC LIMIT 1",
		actor.ID, id)
	active, err := scanLoan(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load active request: %w", err)
	}
	return &BookView{Book: *book, Status: book.StatusFor(active)}, nil
}

func lockBook(ctx context.Context, tx *sql.Tx, id int64) (*models.Book, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id = $1 FOR UPDATE", id)
	book, err := scanBook(row)
	if err != nil {
		return nil, notFound(err, ErrBookNotFound, "lock book")
	}
	return book, nil
}
