package domain

import "errors"

// Error kinds. Components wrap one of these with %w so callers can use errors.Is.
var (
	ErrIO         = errors.New("io error")
	ErrParse      = errors.New("parse error")
	ErrProvider   = errors.New("embedding provider error")
	ErrStoreInit  = errors.New("store init error")
	ErrStoreWrite = errors.New("store write error")
	ErrStoreQuery = errors.New("store query error")
	ErrConfig     = errors.New("config error")
)
