// Package detectors provides the common interfaces for local anomaly scorers.
package detectors

import "context"

// Record is an input row keyed by field id or field name.
type Record = map[string]any

// Scorer is the common interface for all locally reconstructed anomaly scorers.
type Scorer interface {
	// Score returns the anomaly score for a single record.
	// Scores are in (0, 1] where higher values indicate anomalies.
	Score(input Record) (float64, error)

	// ScoreMany returns anomaly scores for the given records.
	ScoreMany(inputs []Record) ([]float64, error)

	// Save serializes the reconstructed scorer to bytes.
	Save() ([]byte, error)
}

// StreamScorer extends Scorer with streaming capabilities.
type StreamScorer interface {
	Scorer

	// ScoreStream processes records from a channel and outputs scores.
	ScoreStream(ctx context.Context, input <-chan Record, output chan<- Score) error
}

// Score represents an anomaly scoring result.
type Score struct {
	// Value is the anomaly score in (0, 1].
	Value float64
	// IsAnomaly indicates if the score reaches the threshold.
	IsAnomaly bool
	// Input contains the original record.
	Input Record
	// Err is set when the record could not be scored.
	Err error
	// Metadata contains additional information.
	Metadata map[string]any
}

// Config holds common configuration for scorers.
type Config struct {
	// Threshold is the score threshold for classifying anomalies.
	Threshold float64
}

// DefaultConfig returns sensible defaults for scorer configuration.
func DefaultConfig() Config {
	return Config{
		Threshold: 0.6,
	}
}
