package export

import "codeberg.org/mutker/ergmon/internal/errors"

const (
	// Sink errors
	ErrInvalidDataDir = errors.ErrorCode("export_invalid_data_dir")
	ErrWriteFailed    = errors.ErrorCode("export_write_failed")
	ErrReadFailed     = errors.ErrorCode("export_read_failed")
	ErrMalformedFile  = errors.ErrorCode("export_malformed_file")
	ErrNotFinalized   = errors.ErrorCode("export_session_not_finalized")

	// Archive errors
	ErrInvalidDBPath     = errors.ErrorCode("archive_invalid_db_path")
	ErrStorageInit       = errors.ErrorCode("archive_storage_init_failed")
	ErrStorageAccess     = errors.ErrorCode("archive_storage_access_failed")
	ErrStorageClose      = errors.ErrorCode("archive_storage_close_failed")
	ErrSchemaInitFailed  = errors.ErrorCode("archive_schema_init_failed")
	ErrSchemaMismatch    = errors.ErrorCode("archive_schema_version_mismatch")
	ErrTransactionFailed = errors.ErrorCode("archive_transaction_failed")
	ErrSessionNotFound   = errors.ErrorCode("archive_session_not_found")
)
