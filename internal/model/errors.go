package model

import "errors"

var (
	// ErrUpstreamUnavailable marks node or explorer network failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrStorageUnavailable marks database connection failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrSchemaConflict marks an existing table whose columns do not match.
	ErrSchemaConflict = errors.New("schema conflict")
)
