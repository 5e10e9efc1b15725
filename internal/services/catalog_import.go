package services

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/libraryhub/backend/internal/models"
	"go.uber.org/zap"
)

// BookImport is one row of a catalog import file
type BookImport struct {
	Line   int
	Author string
	Book   BookInput
}

// ImportReport summarises a catalog import
type ImportReport struct {
	Created        int      `json:"created"`
	AuthorsCreated int      `json:"authors_created"`
	Skipped        int      `json:"skipped"`
	Errors         []string `json:"errors,omitempty"`
}

var importHeader = []string{"title", "author", "isbn", "publisher", "year", "category", "copies"}

// ParseBookCSV reads a header line followed by
// title,author,isbn,publisher,year,category,copies rows
func ParseBookCSV(r io.Reader) ([]BookImport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(importHeader)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range importHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), name) {
			return nil, fmt.Errorf("column %d: expected %q, got %q", i+1, name, header[i])
		}
	}

	var rows []BookImport
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		copies, err := strconv.Atoi(record[6])
		if err != nil {
			return nil, fmt.Errorf("line %d: copies %q is not a number", line, record[6])
		}
		in := BookInput{
			Title:       record[0],
			ISBN:        record[2],
			Publisher:   record[3],
			Category:    record[5],
			TotalCopies: copies,
		}
		if record[4] != "" {
			year, err := strconv.Atoi(record[4])
			if err != nil {
				return nil, fmt.Errorf("line %d: year %q is not a number", line, record[4])
			}
			in.PublicationYear = &year
		}
		rows = append(rows, BookImport{Line: line, Author: strings.TrimSpace(record[1]), Book: in})
	}
	return rows, nil
}

// ImportBooks adds every row, creating authors by name as needed. Rows whose
// isbn is already catalogued are skipped; other invalid rows are reported
// and the import carries on.
func (s *CatalogService) ImportBooks(ctx context.Context, actor models.Identity, rows []BookImport) (*ImportReport, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}

	report := &ImportReport{}
	authors := make(map[string]int64)
	for _, row := range rows {
		authorID, ok := authors[row.Author]
		if !ok {
			id, created, err := s.authorByName(ctx, actor, row.Author)
			if KindOf(err) == KindValidation {
				report.Errors = append(report.Errors, fmt.Sprintf("line %d: %s", row.Line, err))
				continue
			}
			if err != nil {
				return report, err
			}
			if created {
				report.AuthorsCreated++
			}
			authors[row.Author] = id
			authorID = id
		}

		in := row.Book
		in.AuthorID = authorID
		_, err := s.CreateBook(ctx, actor, in)
		switch {
		case errors.Is(err, errDuplicateISBN):
			report.Skipped++
		case KindOf(err) == KindValidation:
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: %s", row.Line, err))
		case err != nil:
			return report, err
		default:
			report.Created++
		}
	}

	s.logger.Info("catalog import finished",
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

func (s *CatalogService) authorByName(ctx context.Context, actor models.Identity, name string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM authors WHERE name = $1 ORDER BY id LIMIT 1", name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("find author: %w", err)
	}

	author, err := s.CreateAuthor(ctx, actor, AuthorInput{Name: name})
	if err != nil {
		return 0, false, err
	}
	return author.ID, true, nil
}
