package entities

import "errors"

// Document store errors
var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDocumentCorrupted   = errors.New("document corrupted")
	ErrBackupNotFound      = errors.New("backup not found")
	ErrInvalidBackupName   = errors.New("invalid backup name")
	ErrRevisionConflict    = errors.New("revision conflict")
	ErrRemoteNotConfigured = errors.New("remote backend not configured")
)
