package domain

import "errors"

var (
	// ErrNotFound means no row exists for the requested key.
	ErrNotFound = errors.New("not found")

	// ErrSyncInProgress means another sync already holds the guard for
	// this (tenant, environment).
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrStorageUnavailable aborts a whole sync run; it is the only
	// failure that does.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
