package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("score record not found")
	ErrInvalidLimit  = errors.New("invalid history limit")
	ErrInvalidRecord = errors.New("score record needs run, user and video ids")
	ErrClosed        = errors.New("store closed")
)
