package repository

import "errors"

var (
	ErrNotFound         = errors.New("entity not found")
	ErrCacheUnavailable = errors.New("basket cache unavailable")
	ErrConnectionFailed = errors.New("database connection failed")
	ErrQueryFailed      = errors.New("database query failed")
)
