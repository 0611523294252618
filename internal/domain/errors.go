package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrSubmission    = errors.New("job submission failed")
	ErrMasterMissing = errors.New("master file not loaded")
	ErrInvalidUpload = errors.New("invalid upload")
	ErrJobNotActive  = errors.New("job not active")
	ErrInvalidKey    = errors.New("invalid file name")
)
