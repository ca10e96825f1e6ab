package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("catalog: record not found")
	// ErrValidation indicates a caller-supplied field failed a rule.
	ErrValidation = errors.New("catalog: validation failed")
	// ErrAuthorNotFound indicates a book write referenced a missing author.
	ErrAuthorNotFound = errors.New("catalog: referenced author not found")

	errMissingDatabase   = errors.New("catalog: database handle is required")
	errMissingIDProvider = errors.New("catalog: id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries a stable machine-readable code alongside the cause
// for unexpected store failures. Domain outcomes use the sentinels above.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew   = "catalog.service.new"
	opListAuthors  = "catalog.list_authors"
	opGetAuthor    = "catalog.get_author"
	opCreateAuthor = "catalog.create_author"
	opUpdateAuthor = "catalog.update_author"
	opDeleteAuthor = "catalog.delete_author"
	opListBooks    = "catalog.list_books"
	opGetBook      = "catalog.get_book"
	opCreateBook   = "catalog.create_book"
	opUpdateBook   = "catalog.update_book"
	opDeleteBook   = "catalog.delete_book"
	opAuthorLookup = "catalog.author_lookup"
)

const (
	reasonMissingDatabase = "missing_database"
	reasonQueryFailed     = "query_failed"
	reasonInsertFailed    = "insert_failed"
	reasonUpdateFailed    = "update_failed"
	reasonDeleteFailed    = "delete_failed"
	reasonIDFailed        = "id_generation_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for new catalog records.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the catalog service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service provides CRUD over the books and authors collections.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService constructs the catalog service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ListAuthors returns every author record.
func (s *Service) ListAuthors(ctx context.Context) ([]Author, error) {
	if s.db == nil {
		return nil, newServiceError(opListAuthors, reasonMissingDatabase, errMissingDatabase)
	}
	var authors []Author
	if err := s.db.WithContext(ctx).Order("created_at").Find(&authors).Error; err != nil {
		s.logError(opListAuthors, err)
		return nil, newServiceError(opListAuthors, reasonQueryFailed, err)
	}
	return authors, nil
}

// GetAuthor returns the author with the given id.
func (s *Service) GetAuthor(ctx context.Context, id string) (*Author, error) {
	if s.db == nil {
		return nil, newServiceError(opGetAuthor, reasonMissingDatabase, errMissingDatabase)
	}
	var author Author
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&author).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logError(opGetAuthor, err)
		return nil, newServiceError(opGetAuthor, reasonQueryFailed, err)
	}
	return &author, nil
}

// CreateAuthor validates and persists a new author.
func (s *Service) CreateAuthor(ctx context.Context, input AuthorInput) (*Author, error) {
	if s.db == nil {
		return nil, newServiceError(opCreateAuthor, reasonMissingDatabase, errMissingDatabase)
	}
	if err := validateAuthorInput(input); err != nil {
		return nil, err
	}

	identifier, err := s.idProvider.NewID()
	if err != nil {
		return nil, newServiceError(opCreateAuthor, reasonIDFailed, err)
	}

	now := s.clock().UTC()
	author := Author{
		ID:          identifier,
		Name:        strings.TrimSpace(input.Name),
		Email:       strings.TrimSpace(input.Email),
		Biography:   input.Biography,
		BirthDate:   strings.TrimSpace(input.BirthDate),
		Nationality: input.Nationality,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&author).Error; err != nil {
		s.logError(opCreateAuthor, err)
		return nil, newServiceError(opCreateAuthor, reasonInsertFailed, err)
	}
	return &author, nil
}

// UpdateAuthor validates and applies a full update to an existing author.
func (s *Service) UpdateAuthor(ctx context.Context, id string, input AuthorInput) (*Author, error) {
	if s.db == nil {
		return nil, newServiceError(opUpdateAuthor, reasonMissingDatabase, errMissingDatabase)
	}
	if err := validateAuthorInput(input); err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).
		Model(&Author{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"name":        strings.TrimSpace(input.Name),
			"email":       strings.TrimSpace(input.Email),
			"biography":   input.Biography,
			"birth_date":  strings.TrimSpace(input.BirthDate),
			"nationality": input.Nationality,
			"updated_at":  s.clock().UTC(),
		})
	if result.Error != nil {
		s.logError(opUpdateAuthor, result.Error)
		return nil, newServiceError(opUpdateAuthor, reasonUpdateFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetAuthor(ctx, id)
}

// DeleteAuthor removes the author with the given id.
func (s *Service) DeleteAuthor(ctx context.Context, id string) error {
	if s.db == nil {
		return newServiceError(opDeleteAuthor, reasonMissingDatabase, errMissingDatabase)
	}
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Author{})
	if result.Error != nil {
		s.logError(opDeleteAuthor, result.Error)
		return newServiceError(opDeleteAuthor, reasonDeleteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBooks returns every book record.
func (s *Service) ListBooks(ctx context.Context) ([]Book, error) {
	if s.db == nil {
		return nil, newServiceError(opListBooks, reasonMissingDatabase, errMissingDatabase)
	}
	var books []Book
	if err := s.db.WithContext(ctx).Order("created_at").Find(&books).Error; err != nil {
		s.logError(opListBooks, err)
		return nil, newServiceError(opListBooks, reasonQueryFailed, err)
	}
	return books, nil
}

// GetBook returns the book with the given id.
func (s *Service) GetBook(ctx context.Context, id string) (*Book, error) {
	if s.db == nil {
		return nil, newServiceError(opGetBook, reasonMissingDatabase, errMissingDatabase)
	}
	var book Book
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logError(opGetBook, err)
		return nil, newServiceError(opGetBook, reasonQueryFailed, err)
	}
	return &book, nil
}

// CreateBook validates the input, verifies the referenced author exists
// and persists a new book.
func (s *Service) CreateBook(ctx context.Context, input BookInput) (*Book, error) {
	if s.db == nil {
		return nil, newServiceError(opCreateBook, reasonMissingDatabase, errMissingDatabase)
	}
	if err := validateBookInput(input, s.clock().Year()); err != nil {
		return nil, err
	}
	if err := s.ensureAuthorExists(ctx, input.AuthorID); err != nil {
		return nil, err
	}

	identifier, err := s.idProvider.NewID()
	if err != nil {
		return nil, newServiceError(opCreateBook, reasonIDFailed, err)
	}

	now := s.clock().UTC()
	book := bookFromInput(input)
	book.ID = identifier
	book.CreatedAt = now
	book.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(&book).Error; err != nil {
		s.logError(opCreateBook, err)
		return nil, newServiceError(opCreateBook, reasonInsertFailed, err)
	}
	return &book, nil
}

// UpdateBook validates and applies a full update to an existing book.
func (s *Service) UpdateBook(ctx context.Context, id string, input BookInput) (*Book, error) {
	if s.db == nil {
		return nil, newServiceError(opUpdateBook, reasonMissingDatabase, errMissingDatabase)
	}
	if err := validateBookInput(input, s.clock().Year()); err != nil {
		return nil, err
	}
	if err := s.ensureAuthorExists(ctx, input.AuthorID); err != nil {
		return nil, err
	}

	updated := bookFromInput(input)
	updated.UpdatedAt = s.clock().UTC()
	result := s.db.WithContext(ctx).
		Model(&Book{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"title":          updated.Title,
			"author_id":      updated.AuthorID,
			"isbn":           updated.ISBN,
			"published_year": updated.PublishedYear,
			"genre":          updated.Genre,
			"pages":          updated.Pages,
			"publisher":      updated.Publisher,
			"language":       updated.Language,
			"description":    updated.Description,
			"price":          updated.Price,
			"in_stock":       updated.InStock,
			"updated_at":     updated.UpdatedAt,
		})
	if result.Error != nil {
		s.logError(opUpdateBook, result.Error)
		return nil, newServiceError(opUpdateBook, reasonUpdateFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetBook(ctx, id)
}

// DeleteBook removes the book with the given id.
func (s *Service) DeleteBook(ctx context.Context, id string) error {
	if s.db == nil {
		return newServiceError(opDeleteBook, reasonMissingDatabase, errMissingDatabase)
	}
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Book{})
	if result.Error != nil {
		s.logError(opDeleteBook, result.Error)
		return newServiceError(opDeleteBook, reasonDeleteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ensureAuthorExists(ctx context.Context, authorID string) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&Author{}).
		Where("id = ?", authorID).
		Count(&count).Error; err != nil {
		s.logError(opAuthorLookup, err)
		return newServiceError(opAuthorLookup, reasonQueryFailed, err)
	}
	if count == 0 {
		return ErrAuthorNotFound
	}
	return nil
}

func bookFromInput(input BookInput) Book {
	return Book{
		Title:         strings.TrimSpace(input.Title),
		AuthorID:      strings.TrimSpace(input.AuthorID),
		ISBN:          strings.TrimSpace(input.ISBN),
		PublishedYear: input.PublishedYear,
		Genre:         input.Genre,
		Pages:         input.Pages,
		Publisher:     input.Publisher,
		Language:      input.Language,
		Description:   input.Description,
		Price:         input.Price,
		InStock:       input.InStock,
	}
}

func (s *Service) logError(operation string, err error) {
	s.logger.Error("catalog service error",
		zap.String("operation", operation),
		zap.Error(err),
	)
}
