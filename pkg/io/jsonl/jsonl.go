// Package jsonl reads records from and writes results to newline
// delimited JSON streams.
package jsonl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hed1ad/anomalyscore/pkg/detectors"
	anomalyio "github.com/hed1ad/anomalyscore/pkg/io"
)

// Reader decodes a sequence of JSON objects. A top-level array is
// flattened into its elements.
type Reader struct {
	closer  io.Closer
	decoder *json.Decoder
	pending []detectors.Record
}

// NewReader opens filename for reading. "-" reads from standard input.
func NewReader(filename string) (*Reader, error) {
	if filename == "-" {
		return FromReader(os.Stdin), nil
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r := FromReader(file)
	r.closer = file
	return r, nil
}

// FromReader wraps an open stream.
func FromReader(src io.Reader) *Reader {
	return &Reader{decoder: json.NewDecoder(src)}
}

// next returns the following record or io.EOF.
func (r *Reader) next() (detectors.Record, error) {
	for len(r.pending) == 0 {
		var raw json.RawMessage
		if err := r.decoder.Decode(&raw); err != nil {
			return nil, err
		}
		records, err := decodeRecords(raw)
		if err != nil {
			return nil, err
		}
		r.pending = records
	}
	rec := r.pending[0]
	r.pending = r.pending[1:]
	return rec, nil
}

func decodeRecords(raw json.RawMessage) ([]detectors.Record, error) {
	var rec detectors.Record
	if err := json.Unmarshal(raw, &rec); err == nil {
		if rec == nil {
			return nil, errors.New("jsonl: null record")
		}
		return []detectors.Record{rec}, nil
	}

	var list []detectors.Record
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("jsonl: expected object or array of objects: %w", err)
	}
	return list, nil
}

// Read returns every record.
func (r *Reader) Read() ([]detectors.Record, error) {
	var data []detectors.Record
	for {
		rec, err := r.next()
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
		data = append(data, rec)
	}
}

// Stream returns a channel of records. Decoding stops at the first
// malformed value.
func (r *Reader) Stream(ctx context.Context) (<-chan detectors.Record, error) {
	out := make(chan detectors.Record, 100)

	go func() {
		defer close(out)
		for {
			rec, err := r.next()
			if err != nil {
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Writer encodes one result per line. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	closer  io.Closer
	encoder *json.Encoder
}

// NewWriter wraps dst. If dst is an io.Closer it is closed by Close.
func NewWriter(dst io.Writer) *Writer {
	w := &Writer{encoder: json.NewEncoder(dst)}
	if c, ok := dst.(io.Closer); ok && dst != os.Stdout && dst != os.Stderr {
		w.closer = c
	}
	return w
}

// Write outputs a single result.
func (w *Writer) Write(result anomalyio.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.encoder.Encode(result)
}

// WriteAll outputs multiple results.
func (w *Writer) WriteAll(results []anomalyio.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range results {
		if err := w.encoder.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// Close releases resources.
func (w *Writer) Close() error {
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

var (
	_ anomalyio.Reader = (*Reader)(nil)
	_ anomalyio.Writer = (*Writer)(nil)
)
