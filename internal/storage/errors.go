package storage

import "errors"

// ErrInvalidWindow is returned when Increment is called with a non-positive window.
var ErrInvalidWindow = errors.New("window must be positive")

// ErrEmptyKey is returned when Increment is called without a key.
var ErrEmptyKey = errors.New("key is required")

func checkIncrement(key string, window int64) error {
	if key == "" {
		return ErrEmptyKey
	}
	if window <= 0 {
		return ErrInvalidWindow
	}
	return nil
}
