package models

import "errors"

// Custom errors
var (
	ErrStrategyNameRequired = errors.New("strategy name is required")
	ErrEpochsRequired       = errors.New("epoch count must be positive when search configuration is present")
	ErrNotFound             = errors.New("record not found")
	ErrHyperoptNotFound     = errors.New("linked hyperopt result does not exist")
	ErrInvalidID            = errors.New("invalid ID format")
)
