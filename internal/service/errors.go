package service

import "errors"

// ErrAlreadyRunning is returned when a run for the same dataset is in progress.
var ErrAlreadyRunning = errors.New("a run for this dataset is already in progress")
