package shared

import "errors"

var (
	// ErrMissingRetailer indicates an event without a retailer reference.
	ErrMissingRetailer = errors.New("retailer id missing")
)
