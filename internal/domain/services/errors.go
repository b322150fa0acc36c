package services

import "errors"

var (
	// ErrScanInProgress is returned when another process holds the refresh lock
	ErrScanInProgress = errors.New("scan already in progress")
	// ErrCoordinatorClosed is returned for work submitted after Close
	ErrCoordinatorClosed = errors.New("scan coordinator closed")

	errNoModel       = errors.New("no risk model configured")
	errFeatureLayout = errors.New("model feature layout does not match feature catalog")
)
