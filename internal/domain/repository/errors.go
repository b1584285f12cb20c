package repository

import "errors"

var (
	// ErrNotFound is returned when an asset, model version or artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when registering a duplicate asset.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInsufficientData means the asset has too little history to train.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrMissingDependency means the reference asset's forecast was not available in time.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrInsufficientHistory means there is too little history for a component breakdown.
	ErrInsufficientHistory = errors.New("insufficient history")
)
