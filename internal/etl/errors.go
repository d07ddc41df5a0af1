package etl

import (
	"errors"

	"etlbranching/internal/domain"
)

var (
	// ErrUnknownDataset is returned for names missing from the catalog.
	ErrUnknownDataset = domain.ErrUnknownDataset

	// ErrDatasetFileNotFound is returned when a downloaded dataset does not
	// contain the expected file.
	ErrDatasetFileNotFound = errors.New("dataset file not found")

	// ErrMissingConfig is returned when a required source field is unset.
	ErrMissingConfig = errors.New("missing source config")
)
