package iforest

import "errors"

var (
	// ErrModelIncomplete is returned when the resource lacks mean_depth,
	// sample_size or other data required to score.
	ErrModelIncomplete = errors.New("anomaly detector is incomplete")
	// ErrModelNotReady is returned when the resource has not finished training.
	ErrModelNotReady = errors.New("anomaly detector is not finished")
	// ErrForestUnavailable is returned when there are no trees to score with.
	ErrForestUnavailable = errors.New("isolation forest is unavailable")
	// ErrInvalidPredicate is returned for predicates that cannot be compacted.
	ErrInvalidPredicate = errors.New("invalid predicate")
	// ErrUnsupportedFormat is returned for blobs that are not serialized scorers
	// or use an unknown format version.
	ErrUnsupportedFormat = errors.New("unsupported scorer format")
	// ErrCorruptState is returned for serialized scorers with inconsistent data.
	ErrCorruptState = errors.New("corrupt scorer state")
)
