package domain

import "errors"

var (
	// ErrNoIndex is returned when a query arrives before any index has
	// been built or loaded. Callers must be able to distinguish this
	// from an empty result set.
	ErrNoIndex = errors.New("no index available; run a rebuild first")

	// ErrDimensionMismatch signals that a vector's length disagrees
	// with the index's configured dimensionality. This is a
	// configuration error and is fatal for that index until a rebuild.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyQuery is returned when a query supplies neither text nor
	// an image. It is rejected before any index access.
	ErrEmptyQuery = errors.New("query must include text or an image")

	// ErrUnsupportedFormat marks a document whose format tag has no
	// extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)
