package kaggle

import "errors"

var (
	ErrInvalidHandle   = errors.New("invalid dataset handle")
	ErrUnauthorized    = errors.New("kaggle: unauthorized")
	ErrDatasetNotFound = errors.New("kaggle: dataset not found")
	ErrUnsafeArchive   = errors.New("archive entry escapes target directory")
)
