// Package io provides input/output utilities for records to score.
package io

import (
	"context"

	"github.com/hed1ad/anomalyscore/pkg/detectors"
)

// Reader is the interface for reading records from various sources.
type Reader interface {
	// Read returns every record.
	Read() ([]detectors.Record, error)

	// Stream returns a channel of records for real-time processing.
	Stream(ctx context.Context) (<-chan detectors.Record, error)

	// Close releases resources.
	Close() error
}

// Writer is the interface for writing scoring results.
type Writer interface {
	// Write outputs a single result.
	Write(result Result) error

	// WriteAll outputs multiple results.
	WriteAll(results []Result) error

	// Close releases resources.
	Close() error
}

// Result represents an anomaly scoring result.
type Result struct {
	Timestamp int64            `json:"timestamp"`
	Score     float64          `json:"score"`
	IsAnomaly bool             `json:"is_anomaly"`
	Error     string           `json:"error,omitempty"`
	Input     detectors.Record `json:"input,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

// NewResult converts a streamed score into a Result.
func NewResult(s detectors.Score, timestamp int64) Result {
	r := Result{
		Timestamp: timestamp,
		Score:     s.Value,
		IsAnomaly: s.IsAnomaly,
		Input:     s.Input,
		Metadata:  s.Metadata,
	}
	if s.Err != nil {
		r.Error = s.Err.Error()
	}
	return r
}
