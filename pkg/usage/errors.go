package usage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no records.
var ErrNotFound = errors.New("no usage records found")

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("dynamodb", "sqlite", "redis", "memory")
	Operation string // Operation that failed ("put", "query", "purge", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// QueryError represents an invalid or failed range query.
type QueryError struct {
	Index string // Index or partition that was queried
	Cause error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error [index=%s]: %v", e.Index, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(index string, cause error) *QueryError {
	return &QueryError{Index: index, Cause: cause}
}

// ExportError represents an error during record export.
type ExportError struct {
	Format      string // Export format ("csv", "json")
	RecordCount int    // Records written before the failure
	Cause       error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, records=%d]: %v", e.Format, e.RecordCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, recordCount int, cause error) *ExportError {
	return &ExportError{Format: format, RecordCount: recordCount, Cause: cause}
}

// ValidationError reports a record that violates an invariant.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid usage record: %s: %s", e.Field, e.Message)
}
