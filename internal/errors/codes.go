// Package errors provides structured error handling for indexedsearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Index storage errors
//   - 3XX: Contention errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryStorage    Category = "STORAGE"
	CategoryContention Category = "CONTENTION"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Index storage errors (200-299)
	ErrCodeIndexCreate      = "ERR_201_INDEX_CREATE"
	ErrCodeIndexWrite       = "ERR_202_INDEX_WRITE"
	ErrCodeIndexRead        = "ERR_203_INDEX_READ"
	ErrCodeSchemaMismatch   = "ERR_204_SCHEMA_MISMATCH"
	ErrCodeCorruptIndex     = "ERR_205_CORRUPT_INDEX"
	ErrCodeIndexClosed      = "ERR_206_INDEX_CLOSED"
	ErrCodeIndexUnavailable = "ERR_207_INDEX_UNAVAILABLE"
	ErrCodeRecordStore      = "ERR_208_RECORD_STORE"

	// Contention errors (300-399)
	ErrCodeWriterBusy   = "ERR_301_WRITER_BUSY"
	ErrCodeQueueClosed  = "ERR_302_QUEUE_CLOSED"
	ErrCodeWriterClosed = "ERR_303_WRITER_CLOSED"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery  = "ERR_403_INVALID_QUERY"
	ErrCodeQueryTooLong  = "ERR_405_QUERY_TOO_LONG"
	ErrCodeNotProcessed  = "ERR_407_NOT_PROCESSED"
	ErrCodeMediaNotFound = "ERR_408_MEDIA_NOT_FOUND"
	ErrCodeUnauthorized  = "ERR_409_UNAUTHORIZED"

	// Internal errors (500-599)
	ErrCodeInternal      = "ERR_501_INTERNAL"
	ErrCodeSearchFailed  = "ERR_503_SEARCH_FAILED"
	ErrCodeReconcile     = "ERR_505_RECONCILE_FAILED"
	ErrCodeEventDispatch = "ERR_506_EVENT_DISPATCH"
)

// Sentinels for errors.Is matching. Is compares codes, so any error built
// with the same code matches its sentinel.
var (
	ErrNotProcessed     = New(ErrCodeNotProcessed, "", nil)
	ErrQueryParse       = New(ErrCodeInvalidQuery, "", nil)
	ErrQueryTooLong     = New(ErrCodeQueryTooLong, "", nil)
	ErrIndexUnavailable = New(ErrCodeIndexUnavailable, "", nil)
	ErrSchemaMismatch   = New(ErrCodeSchemaMismatch, "", nil)
	ErrWriterBusy       = New(ErrCodeWriterBusy, "", nil)
	ErrWriterClosed     = New(ErrCodeWriterClosed, "", nil)
	ErrIndexClosed      = New(ErrCodeIndexClosed, "", nil)
	ErrMediaNotFound    = New(ErrCodeMediaNotFound, "", nil)
	ErrQueueClosed      = New(ErrCodeQueueClosed, "", nil)
	ErrUnauthorized     = New(ErrCodeUnauthorized, "", nil)
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "101" from "ERR_101_CONFIG_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryContention
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeSchemaMismatch, ErrCodeIndexUnavailable:
		return SeverityFatal
	case ErrCodeNotProcessed:
		return SeverityInfo
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeWriterBusy:
		return true
	default:
		return false
	}
}
