package db

import (
	"go.uber.org/zap"
)

// DefaultPerPage is the page size used by list operations when the caller
// does not specify one.
const DefaultPerPage = 25

// Repository handles database operations for all messaging entities.
// Every tenant-scoped query filters on tenant_id and, unless the caller
// explicitly asks for deleted rows, on is_deleted = FALSE.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = DefaultPerPage
	}
	return page, perPage
}
