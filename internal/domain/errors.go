package domain

import "errors"

var (
	ErrInvalidConfiguration   = errors.New("invalid configuration")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrCacheInsertionConflict = errors.New("cache insertion conflict")
	ErrStartupServiceFailure  = errors.New("startup service failed")
	ErrBootstrapDiscovery     = errors.New("failed to discover startup services")
)
